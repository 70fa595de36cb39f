package reservations

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
	"github.com/ariefcatur/go-realtime-floor/internal/domain"
	"github.com/ariefcatur/go-realtime-floor/internal/events"
	"github.com/ariefcatur/go-realtime-floor/internal/store"
	"github.com/ariefcatur/go-realtime-floor/internal/tables"
)

var tracer = otel.Tracer("floor/reservations")

type CreateInput struct {
	TableID         string `json:"table_id"`
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	GuestCount      int    `json:"guest_count"`
	Notes           string `json:"notes"`
	AssignedTo      string `json:"assigned_to"`
	CreatedBy       string `json:"-"`
}

// UpdateInput carries only the fields to change.
type UpdateInput struct {
	TableID         *string `json:"table_id"`
	CustomerName    *string `json:"customer_name"`
	CustomerPhone   *string `json:"customer_phone"`
	Date            *string `json:"date"`
	Time            *string `json:"time"`
	DurationMinutes *int    `json:"duration_minutes"`
	GuestCount      *int    `json:"guest_count"`
	Notes           *string `json:"notes"`
	AssignedTo      *string `json:"assigned_to"`
}

type Config struct {
	DefaultDuration int
	Producer        string
}

type Service struct {
	store           store.Store
	tables          *tables.Reconciler
	pub             events.Publisher
	log             *zap.Logger
	defaultDuration int
	producer        string
}

func NewService(st store.Store, rec *tables.Reconciler, pub events.Publisher, log *zap.Logger, cfg Config) *Service {
	d := cfg.DefaultDuration
	if d <= 0 {
		d = 120
	}
	return &Service{
		store:           st,
		tables:          rec,
		pub:             pub,
		log:             log.With(zap.String("component", "reservations")),
		defaultDuration: d,
		producer:        cfg.Producer,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

func (s *Service) List(ctx context.Context, date, tableID, status string) ([]domain.Reservation, error) {
	f := store.ReservationFilter{Date: date, TableID: tableID}
	fields := apperr.FieldErrors{}
	if date != "" {
		if _, err := domain.ParseDate(date); err != nil {
			fields.Add("date", err.Error())
		}
	}
	if status != "" {
		st := domain.ReservationStatus(status)
		if !st.Valid() {
			fields.Add("status", "unknown reservation status")
		}
		f.Status = st
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	return s.store.ListReservations(ctx, f)
}

func (s *Service) slot(fields apperr.FieldErrors, date, clock string, duration int) domain.Interval {
	if _, err := domain.ParseDate(date); err != nil {
		fields.Add("date", err.Error())
	}
	if duration <= 0 {
		fields.Add("duration_minutes", "must be positive")
	}
	iv, err := domain.ParseSlot(date, clock, duration)
	if err != nil {
		fields.Add("time", err.Error())
	}
	return iv
}

// IsOverlapping reports whether [clock, clock+duration) on date collides
// with a live reservation of the table. excludeID skips one reservation,
// the one being edited. Reads a snapshot without locks.
func (s *Service) IsOverlapping(ctx context.Context, tableID, date, clock string, duration int, excludeID string) (bool, error) {
	fields := apperr.FieldErrors{}
	iv := s.slot(fields, date, clock, duration)
	if err := fields.Err(); err != nil {
		return false, err
	}
	existing, err := s.store.ListReservations(ctx, store.ReservationFilter{Date: date, TableID: tableID})
	if err != nil {
		return false, err
	}
	return domain.FindOverlap(tableID, date, iv, existing, excludeID) != nil, nil
}

// FindAvailableTables returns active, reservable tables seating guests whose
// slot is free, ordered by table number.
func (s *Service) FindAvailableTables(ctx context.Context, date, clock string, duration, guests int) ([]domain.Table, error) {
	ctx, span := tracer.Start(ctx, "reservations.FindAvailableTables")
	defer span.End()

	if duration == 0 {
		duration = s.defaultDuration
	}
	fields := apperr.FieldErrors{}
	iv := s.slot(fields, date, clock, duration)
	if guests < 1 {
		fields.Add("guest_count", "must be at least 1")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	candidates, err := s.store.ListTables(ctx, store.TableFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	booked, err := s.store.ListReservations(ctx, store.ReservationFilter{Date: date})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Table, 0, len(candidates))
	for _, t := range candidates {
		if t.Capacity < guests || !t.CanBeReserved() {
			continue
		}
		if domain.FindOverlap(t.ID, date, iv, booked, "") != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	span.SetAttributes(attribute.Int("tables.available", len(out)))
	return out, nil
}

// place checks r against its table under the table row lock: the table
// takes bookings, seats the party and the slot is free.
func (s *Service) place(ctx context.Context, tx store.Tx, r *domain.Reservation) error {
	t, err := tx.LockTable(ctx, r.TableID)
	if err != nil {
		return err
	}
	if !t.IsActive || !t.CanBeReserved() {
		return apperr.New(apperr.KindInvalidTableStatus, "table %d is not taking reservations", t.Number)
	}
	if r.GuestCount > t.Capacity {
		return apperr.Validation(map[string]string{
			"guest_count": "exceeds table capacity",
		})
	}
	iv, err := r.Interval()
	if err != nil {
		return apperr.Validation(map[string]string{"time": err.Error()})
	}
	existing, err := tx.ReservationsOn(ctx, r.TableID, r.Date)
	if err != nil {
		return err
	}
	if clash := domain.FindOverlap(r.TableID, r.Date, iv, existing, r.ID); clash != nil {
		return apperr.New(apperr.KindReservationOverlap,
			"table %d is already booked at %s for %d minutes", t.Number, clash.Time, clash.DurationMinutes)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.Create")
	defer span.End()
	span.SetAttributes(attribute.String("table.id", in.TableID), attribute.String("date", in.Date))

	if in.DurationMinutes == 0 {
		in.DurationMinutes = s.defaultDuration
	}
	fields := apperr.FieldErrors{}
	if in.TableID == "" {
		fields.Add("table_id", "required")
	}
	if in.CustomerName == "" {
		fields.Add("customer_name", "required")
	}
	if in.GuestCount < 1 {
		fields.Add("guest_count", "must be at least 1")
	}
	s.slot(fields, in.Date, in.Time, in.DurationMinutes)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &domain.Reservation{
		ID:              uuid.NewString(),
		TableID:         in.TableID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		Date:            in.Date,
		Time:            in.Time,
		DurationMinutes: in.DurationMinutes,
		GuestCount:      in.GuestCount,
		Status:          domain.ReservationPending,
		Notes:           in.Notes,
		AssignedTo:      in.AssignedTo,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.place(ctx, tx, r); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("table_id", r.TableID),
		zap.String("date", r.Date),
		zap.String("time", r.Time),
	)
	s.publish(ctx, []events.Envelope{s.event(events.ReservationCreated, r, "")})
	return r, nil
}

func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.Update")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", id))

	var (
		out *domain.Reservation
		evs []events.Envelope
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return apperr.New(apperr.KindInvalidTransition, "reservation %s is %s and can no longer change", r.ID, r.Status)
		}
		prevTable := r.TableID
		apply(r, in)

		fields := apperr.FieldErrors{}
		if r.TableID == "" {
			fields.Add("table_id", "required")
		}
		if r.CustomerName == "" {
			fields.Add("customer_name", "required")
		}
		if r.GuestCount < 1 {
			fields.Add("guest_count", "must be at least 1")
		}
		s.slot(fields, r.Date, r.Time, r.DurationMinutes)
		if err := fields.Err(); err != nil {
			return err
		}
		if err := s.place(ctx, tx, r); err != nil {
			return err
		}
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		evs = append(evs, s.event(events.ReservationUpdated, r, ""))

		// a seated party moving tables frees the old one
		if prevTable != r.TableID && r.Status == domain.ReservationSeated {
			for _, tid := range []string{prevTable, r.TableID} {
				_, tevs, err := s.tables.Reconcile(ctx, tx, tid, "reservation_moved")
				if err != nil {
					return err
				}
				evs = append(evs, tevs...)
			}
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evs)
	return out, nil
}

func apply(r *domain.Reservation, in UpdateInput) {
	if in.TableID != nil {
		r.TableID = *in.TableID
	}
	if in.CustomerName != nil {
		r.CustomerName = *in.CustomerName
	}
	if in.CustomerPhone != nil {
		r.CustomerPhone = *in.CustomerPhone
	}
	if in.Date != nil {
		r.Date = *in.Date
	}
	if in.Time != nil {
		r.Time = *in.Time
	}
	if in.DurationMinutes != nil {
		r.DurationMinutes = *in.DurationMinutes
	}
	if in.GuestCount != nil {
		r.GuestCount = *in.GuestCount
	}
	if in.Notes != nil {
		r.Notes = *in.Notes
	}
	if in.AssignedTo != nil {
		r.AssignedTo = *in.AssignedTo
	}
}

// UpdateStatus moves the reservation along its transition table. Seating
// and every terminal status re-derive the table inside the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "reservations.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("reservation.id", id), attribute.String("status", status))

	next := domain.ReservationStatus(status)
	if !next.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown reservation status"})
	}

	var (
		out *domain.Reservation
		evs []events.Envelope
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		prev := r.Status
		if !prev.CanTransition(next) {
			return apperr.New(apperr.KindInvalidTransition, "reservation cannot move from %s to %s", prev, next)
		}
		r.Status = next
		r.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		evs = append(evs, s.event(events.ReservationStatusChanged, r, prev))

		if next == domain.ReservationSeated || next.Terminal() {
			_, tevs, err := s.tables.Reconcile(ctx, tx, r.TableID, "reservation_"+string(next))
			if err != nil {
				return err
			}
			evs = append(evs, tevs...)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation status changed",
		zap.String("reservation_id", out.ID),
		zap.String("status", string(out.Status)),
	)
	s.publish(ctx, evs)
	return out, nil
}

func (s *Service) event(t events.Type, r *domain.Reservation, prev domain.ReservationStatus) events.Envelope {
	return events.MustNew(t, s.producer, r.ID, events.ReservationPayload{
		ReservationID:  r.ID,
		TableID:        r.TableID,
		AssignedTo:     r.AssignedTo,
		Status:         string(r.Status),
		PreviousStatus: string(prev),
		Date:           r.Date,
		Time:           r.Time,
		Reservation:    r,
	})
}

func (s *Service) publish(ctx context.Context, evs []events.Envelope) {
	if err := s.pub.Publish(ctx, events.Stamp(ctx, evs)...); err != nil {
		s.log.Error("publish reservation events", zap.Error(err))
	}
}
