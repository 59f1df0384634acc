package database

import (
	"context"
	"fmt"
	"sync/atomic"

	"dgc-transports/internal/logger"

	"github.com/uptrace/bun"
)

var memCounter atomic.Int64

// OpenInMemory opens a private in-memory SQLite database with the full
// schema applied. Each call gets its own database.
func OpenInMemory(ctx context.Context) (*bun.DB, error) {
	dsn := fmt.Sprintf("file:dgc_mem_%d?mode=memory&cache=shared", memCounter.Add(1))
	return openSQLite(ctx, dsn, logger.Discard())
}
