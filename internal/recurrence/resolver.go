package recurrence

import (
	"strings"
	"time"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/models"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a full English weekday name, in any case, to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}

// RouteFilter narrows templates by route. Zero fields match anything.
type RouteFilter struct {
	PickupCityID  int64
	DropoffCityID int64
	VehicleTypeID int64
}

func (f RouteFilter) Matches(t models.TripTemplate) bool {
	if f.PickupCityID != 0 && t.PickupCityID != f.PickupCityID {
		return false
	}
	if f.DropoffCityID != 0 && t.DropoffCityID != f.DropoffCityID {
		return false
	}
	if f.VehicleTypeID != 0 && t.VehicleTypeID != f.VehicleTypeID {
		return false
	}
	return true
}

// IsTemplateActiveOn reports whether t runs on d. A template with unparsable
// bounds never runs.
func IsTemplateActiveOn(t models.TripTemplate, d Date) bool {
	start, err := ParseDate(t.StartDate)
	if err != nil {
		return false
	}
	end, err := ParseDate(t.EndDate)
	if err != nil {
		return false
	}
	if d.Before(start) || d.After(end) {
		return false
	}
	if t.Status != models.TemplateStatusActive {
		return false
	}

	switch t.RecurrenceType {
	case models.RecurrenceDay:
		return true
	case models.RecurrenceWeek:
		for _, name := range t.RecurrenceDays {
			if wd, ok := ParseWeekday(name); ok && wd == d.Weekday() {
				return true
			}
		}
		return false
	case models.RecurrenceMonth:
		// No end-of-month clamping: a template starting on the 31st skips shorter months.
		return d.Day == start.Day
	case models.RecurrenceYear:
		return d.Month == start.Month && d.Day == start.Day
	}
	return false
}

// ResolveActiveTemplates returns every template matching filter that runs on d,
// preserving input order.
func ResolveActiveTemplates(templates []models.TripTemplate, filter RouteFilter, d Date) []models.TripTemplate {
	active := make([]models.TripTemplate, 0, len(templates))
	for _, t := range templates {
		if filter.Matches(t) && IsTemplateActiveOn(t, d) {
			active = append(active, t)
		}
	}
	return active
}

// ValidateTemplate checks the structural invariants of a template before it is stored.
func ValidateTemplate(t models.TripTemplate) error {
	if t.PickupCityID == 0 || t.DropoffCityID == 0 {
		return domain.Validation("city", "pickup and dropoff cities are required")
	}
	if t.PickupCityID == t.DropoffCityID {
		return domain.Validation("dropoff_city_id", "must differ from pickup_city_id")
	}
	if t.VehicleID == 0 || t.VehicleTypeID == 0 || t.TimeSlotID == 0 {
		return domain.Validation("template", "vehicle, vehicle type and time slot are required")
	}
	if t.Price < 0 {
		return domain.Validation("price", "must not be negative")
	}

	start, err := ParseDate(t.StartDate)
	if err != nil {
		return domain.Validation("start_date", "must be a valid YYYY-MM-DD date")
	}
	end, err := ParseDate(t.EndDate)
	if err != nil {
		return domain.Validation("end_date", "must be a valid YYYY-MM-DD date")
	}
	if end.Before(start) {
		return domain.Validation("end_date", "must not be before start_date")
	}

	if !t.RecurrenceType.Valid() {
		return domain.Validation("recurrence_type", "must be one of day, week, month, year")
	}
	if t.RecurrenceType == models.RecurrenceWeek {
		if len(t.RecurrenceDays) == 0 {
			return domain.Validation("recurrence_days", "required for weekly recurrence")
		}
		for _, name := range t.RecurrenceDays {
			if _, ok := ParseWeekday(name); !ok {
				return domain.Validation("recurrence_days", "unknown weekday "+name)
			}
		}
	} else if len(t.RecurrenceDays) > 0 {
		return domain.Validation("recurrence_days", "only allowed for weekly recurrence")
	}

	if t.Status != models.TemplateStatusActive && t.Status != models.TemplateStatusInactive {
		return domain.Validation("status", "must be active or inactive")
	}
	return nil
}
