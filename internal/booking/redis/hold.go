package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"

	"github.com/go-redis/redis/v8"
)

const KeyPrefix = "seat_hold:"

// releaseScript deletes a hold only if it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SeatLock serializes concurrent reservations of the same seat. A hold is a
// key per (template, date, seat) whose value is the hold token; it expires
// after TTL unless payment confirms first.
type SeatLock struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewSeatLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *SeatLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SeatLock{Client: client, TTL: ttl, Logger: log}
}

func HoldKey(templateID int64, tripDate string, seat int) string {
	return fmt.Sprintf("%s%d:%s:%d", KeyPrefix, templateID, tripDate, seat)
}

// ParseHoldKey reverses HoldKey.
func ParseHoldKey(key string) (templateID int64, tripDate string, seat int, ok bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return 0, "", 0, false
	}
	parts := strings.Split(strings.TrimPrefix(key, KeyPrefix), ":")
	if len(parts) != 3 {
		return 0, "", 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", 0, false
	}
	s, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, "", 0, false
	}
	return id, parts[1], s, true
}

// HoldSeat claims one seat for token. It reports false if another token holds it.
func (l *SeatLock) HoldSeat(ctx context.Context, templateID int64, tripDate string, seat int, token string) (bool, error) {
	ok, err := l.Client.SetNX(ctx, HoldKey(templateID, tripDate, seat), token, l.TTL).Result()
	if err != nil {
		return false, domain.Unavailable("redis", err)
	}
	return ok, nil
}

// HoldSeats claims every seat or none. Seats already held by the same token
// count as claimed.
func (l *SeatLock) HoldSeats(ctx context.Context, templateID int64, tripDate string, seats []int, token string) (bool, error) {
	held := make([]int, 0, len(seats))
	rollback := func() {
		if err := l.ReleaseSeats(context.WithoutCancel(ctx), templateID, tripDate, held, token); err != nil {
			l.Logger.Error("REDIS", fmt.Sprintf("rollback of hold %s failed: %v", token, err))
		}
	}

	for _, seat := range seats {
		ok, err := l.HoldSeat(ctx, templateID, tripDate, seat, token)
		if err != nil {
			rollback()
			return false, err
		}
		if !ok {
			owner, err := l.holder(ctx, templateID, tripDate, seat)
			if err != nil {
				rollback()
				return false, err
			}
			if owner != token {
				rollback()
				return false, nil
			}
		}
		held = append(held, seat)
	}
	l.Logger.Debug("REDIS", fmt.Sprintf("hold %s: template %d on %s seats %v for %s", token, templateID, tripDate, seats, l.TTL))
	return true, nil
}

// ReleaseSeat drops the hold if token still owns it.
func (l *SeatLock) ReleaseSeat(ctx context.Context, templateID int64, tripDate string, seat int, token string) error {
	err := releaseScript.Run(ctx, l.Client, []string{HoldKey(templateID, tripDate, seat)}, token).Err()
	if err != nil && err != redis.Nil {
		return domain.Unavailable("redis", err)
	}
	return nil
}

func (l *SeatLock) ReleaseSeats(ctx context.Context, templateID int64, tripDate string, seats []int, token string) error {
	var firstErr error
	for _, seat := range seats {
		if err := l.ReleaseSeat(ctx, templateID, tripDate, seat, token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HeldByOthers lists the seats currently held under a token other than token.
func (l *SeatLock) HeldByOthers(ctx context.Context, templateID int64, tripDate string, seats []int, token string) ([]int, error) {
	var others []int
	for _, seat := range seats {
		owner, err := l.holder(ctx, templateID, tripDate, seat)
		if err != nil {
			return nil, err
		}
		if owner != "" && owner != token {
			others = append(others, seat)
		}
	}
	return others, nil
}

// Holder returns the token holding the seat, or "" when it is free.
func (l *SeatLock) Holder(ctx context.Context, templateID int64, tripDate string, seat int) (string, error) {
	return l.holder(ctx, templateID, tripDate, seat)
}

func (l *SeatLock) holder(ctx context.Context, templateID int64, tripDate string, seat int) (string, error) {
	val, err := l.Client.Get(ctx, HoldKey(templateID, tripDate, seat)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", domain.Unavailable("redis", err)
	}
	return val, nil
}
