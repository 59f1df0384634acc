package seats

import (
	"context"
	"fmt"
	"sort"

	"dgc-transports/internal/logger"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
)

// Calculator answers how many seats of a trip remain and which are taken.
// Only paid, non-cancelled bookings count as taken.
type Calculator struct {
	store  Store
	logger *logger.Logger
}

func NewCalculator(store Store, log *logger.Logger) *Calculator {
	return &Calculator{store: store, logger: log}
}

func (c *Calculator) GetAvailability(ctx context.Context, templateID int64, tripDate string) (models.Availability, error) {
	if _, err := recurrence.ParseDate(tripDate); err != nil {
		return models.Availability{}, err
	}

	capacity, err := c.store.TemplateCapacity(ctx, templateID)
	if err != nil {
		return models.Availability{}, err
	}
	booked, err := c.store.PaidSeats(ctx, templateID, tripDate)
	if err != nil {
		return models.Availability{}, err
	}
	if booked == nil {
		booked = []int{}
	}

	available := capacity - len(booked)
	if available < 0 {
		c.logger.Warn("SEATS", fmt.Sprintf(
			"template %d on %s has %d paid seats for capacity %d, reporting 0 available",
			templateID, tripDate, len(booked), capacity))
		available = 0
	}

	return models.Availability{
		TemplateID:  templateID,
		TripDate:    tripDate,
		Capacity:    capacity,
		BookedSeats: booked,
		Available:   available,
	}, nil
}

// CheckSeatsFree returns the requested seats that are already taken, in
// ascending order. An empty result means every requested seat is free.
func (c *Calculator) CheckSeatsFree(ctx context.Context, templateID int64, tripDate string, requested []int) ([]int, error) {
	booked, err := c.store.PaidSeats(ctx, templateID, tripDate)
	if err != nil {
		return nil, err
	}
	return Intersect(requested, booked), nil
}

// Intersect returns the distinct values of requested present in booked, sorted.
func Intersect(requested, booked []int) []int {
	taken := make(map[int]struct{}, len(booked))
	for _, s := range booked {
		taken[s] = struct{}{}
	}

	seen := make(map[int]struct{}, len(requested))
	conflicts := []int{}
	for _, s := range requested {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := taken[s]; ok {
			conflicts = append(conflicts, s)
		}
	}
	sort.Ints(conflicts)
	return conflicts
}
