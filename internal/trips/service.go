package trips

import (
	"context"
	"fmt"

	"dgc-transports/internal/domain"
	"dgc-transports/internal/logger"
	"dgc-transports/internal/models"
	"dgc-transports/internal/recurrence"
	tripdb "dgc-transports/internal/trips/db"
)

// DBLayer is the persistence the trip service needs.
type DBLayer interface {
	GetTemplate(ctx context.Context, id int64) (*models.TripTemplate, error)
	FindTemplatesByRoute(ctx context.Context, pickupCityID, dropoffCityID, vehicleTypeID int64, date string) ([]models.TripTemplate, error)
	CreateTemplate(ctx context.Context, t *models.TripTemplate) error
	SetTemplateStatus(ctx context.Context, id int64, status models.TemplateStatus) error
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	CityExists(ctx context.Context, id int64) (bool, error)
	VehicleTypesByID(ctx context.Context, ids []int64) (map[int64]models.VehicleType, error)
	TimeSlotsByID(ctx context.Context, ids []int64) (map[int64]models.TimeSlot, error)
	CountPaidSeats(ctx context.Context, templateIDs []int64, date string) (map[int64]int, error)
}

var _ DBLayer = (*tripdb.DB)(nil)

type SearchRequest struct {
	PickupCityID  int64  `validate:"required,min=1"`
	DropoffCityID int64  `validate:"required,min=1"`
	VehicleTypeID int64  `validate:"omitempty,min=1"`
	TripDate      string `validate:"required,tripdate"`
}

type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

// SearchTrips lists every template running on the route and date, each with
// its current seat counts. Several templates may serve one route and date.
func (s *Service) SearchTrips(ctx context.Context, req SearchRequest) ([]models.TripSearchResult, error) {
	if req.PickupCityID == req.DropoffCityID {
		return nil, domain.Validation("dropoff_city_id", "pickup and dropoff cities must differ")
	}
	date, err := recurrence.ParseDate(req.TripDate)
	if err != nil {
		return nil, err
	}

	candidates, err := s.DB.FindTemplatesByRoute(ctx, req.PickupCityID, req.DropoffCityID, req.VehicleTypeID, date.String())
	if err != nil {
		return nil, err
	}
	active := recurrence.ResolveActiveTemplates(candidates, recurrence.RouteFilter{
		PickupCityID:  req.PickupCityID,
		DropoffCityID: req.DropoffCityID,
		VehicleTypeID: req.VehicleTypeID,
	}, date)

	results := make([]models.TripSearchResult, 0, len(active))
	if len(active) == 0 {
		return results, nil
	}

	var templateIDs, typeIDs, slotIDs []int64
	for _, t := range active {
		templateIDs = append(templateIDs, t.ID)
		typeIDs = append(typeIDs, t.VehicleTypeID)
		slotIDs = append(slotIDs, t.TimeSlotID)
	}

	types, err := s.DB.VehicleTypesByID(ctx, typeIDs)
	if err != nil {
		return nil, err
	}
	slots, err := s.DB.TimeSlotsByID(ctx, slotIDs)
	if err != nil {
		return nil, err
	}
	counts, err := s.DB.CountPaidSeats(ctx, templateIDs, date.String())
	if err != nil {
		return nil, err
	}

	for _, t := range active {
		capacity := types[t.VehicleTypeID].Capacity
		booked := counts[t.ID]
		available := capacity - booked
		if available < 0 {
			s.Logger.Warn("TRIP", fmt.Sprintf("template %d on %s is overbooked (%d/%d)", t.ID, date, booked, capacity))
			available = 0
		}
		results = append(results, models.TripSearchResult{
			TemplateID:     t.ID,
			TripDate:       date.String(),
			PickupCityID:   t.PickupCityID,
			DropoffCityID:  t.DropoffCityID,
			VehicleID:      t.VehicleID,
			VehicleTypeID:  t.VehicleTypeID,
			TimeSlotID:     t.TimeSlotID,
			DepartureTime:  slots[t.TimeSlotID].DepartureTime,
			Price:          t.Price,
			RecurrenceType: t.RecurrenceType,
			Capacity:       capacity,
			BookedCount:    booked,
			Available:      available,
		})
	}

	s.Logger.Debug("TRIP", fmt.Sprintf("search %d->%d on %s: %d trips", req.PickupCityID, req.DropoffCityID, date, len(results)))
	return results, nil
}

func (s *Service) GetTemplate(ctx context.Context, id int64) (*models.TripTemplate, error) {
	return s.DB.GetTemplate(ctx, id)
}

// CreateTemplate validates and stores a new template. The vehicle type is
// taken from the vehicle when omitted and must match it otherwise.
func (s *Service) CreateTemplate(ctx context.Context, t models.TripTemplate) (*models.TripTemplate, error) {
	if t.Status == "" {
		t.Status = models.TemplateStatusActive
	}

	if t.VehicleID != 0 {
		vehicle, err := s.DB.GetVehicle(ctx, t.VehicleID)
		if err != nil {
			if domain.IsNotFound(err) {
				return nil, domain.Validation("vehicle_id", "unknown vehicle")
			}
			return nil, err
		}
		if t.VehicleTypeID == 0 {
			t.VehicleTypeID = vehicle.VehicleTypeID
		} else if t.VehicleTypeID != vehicle.VehicleTypeID {
			return nil, domain.Validation("vehicle_type_id", "does not match the vehicle's type")
		}
	}

	if err := recurrence.ValidateTemplate(t); err != nil {
		return nil, err
	}

	for _, id := range []int64{t.PickupCityID, t.DropoffCityID} {
		ok, err := s.DB.CityExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.Validation("city", fmt.Sprintf("unknown city %d", id))
		}
	}

	if err := s.DB.CreateTemplate(ctx, &t); err != nil {
		return nil, err
	}
	s.Logger.LogTrip("CREATE", t.ID, t.StartDate, fmt.Sprintf("%s recurrence until %s", t.RecurrenceType, t.EndDate))
	return &t, nil
}

// SetTemplateStatus soft-enables or soft-disables a template. Templates are
// never deleted because bookings reference them.
func (s *Service) SetTemplateStatus(ctx context.Context, id int64, status models.TemplateStatus) error {
	if status != models.TemplateStatusActive && status != models.TemplateStatusInactive {
		return domain.Validation("status", "must be active or inactive")
	}
	if err := s.DB.SetTemplateStatus(ctx, id, status); err != nil {
		return err
	}
	s.Logger.LogTrip("STATUS", id, "-", string(status))
	return nil
}

// ResolveTemplateOn loads a template and checks that it runs on tripDate.
func (s *Service) ResolveTemplateOn(ctx context.Context, id int64, tripDate string) (*models.TripTemplate, recurrence.Date, error) {
	date, err := recurrence.ParseDate(tripDate)
	if err != nil {
		return nil, recurrence.Date{}, err
	}
	t, err := s.DB.GetTemplate(ctx, id)
	if err != nil {
		return nil, recurrence.Date{}, err
	}
	if !recurrence.IsTemplateActiveOn(*t, date) {
		return nil, recurrence.Date{}, domain.Validation("trip_date", fmt.Sprintf("trip %d does not run on %s", id, date))
	}
	return t, date, nil
}
