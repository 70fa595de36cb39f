package domain

import (
	"fmt"
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationSeated    ReservationStatus = "seated"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationNoShow    ReservationStatus = "no_show"
)

var ReservationStatuses = []ReservationStatus{
	ReservationPending, ReservationConfirmed, ReservationSeated,
	ReservationCompleted, ReservationCancelled, ReservationNoShow,
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationSeated, ReservationCancelled, ReservationNoShow},
	ReservationConfirmed: {ReservationSeated, ReservationCancelled, ReservationNoShow},
	ReservationSeated:    {ReservationCompleted, ReservationCancelled},
	ReservationCompleted: {},
	ReservationCancelled: {},
	ReservationNoShow:    {},
}

func (s ReservationStatus) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

func (s ReservationStatus) Terminal() bool {
	return s == ReservationCompleted || s == ReservationCancelled || s == ReservationNoShow
}

func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	for _, next := range reservationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// BlocksSlot reports whether a reservation in this status occupies its
// time slot for overlap purposes.
func (s ReservationStatus) BlocksSlot() bool {
	return s != ReservationCancelled && s != ReservationNoShow
}

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Reservation struct {
	ID              string            `json:"id"`
	TableID         string            `json:"table_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	DurationMinutes int               `json:"duration_minutes"`
	GuestCount      int               `json:"guest_count"`
	Status          ReservationStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	AssignedTo      string            `json:"assigned_to,omitempty"`
	CreatedBy       string            `json:"created_by,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Interval is a half-open [Start, End) range in minutes from midnight of
// the reservation date. End may exceed 24h for late bookings.
type Interval struct {
	Start int
	End   int
}

func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseSlot validates date and clock and returns the interval they cover.
func ParseSlot(date, clock string, durationMinutes int) (Interval, error) {
	if _, err := ParseDate(date); err != nil {
		return Interval{}, err
	}
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return Interval{}, fmt.Errorf("time %q: want HH:MM", clock)
	}
	if durationMinutes <= 0 {
		return Interval{}, fmt.Errorf("duration must be positive")
	}
	start := t.Hour()*60 + t.Minute()
	return Interval{Start: start, End: start + durationMinutes}, nil
}

func (r Reservation) Interval() (Interval, error) {
	return ParseSlot(r.Date, r.Time, r.DurationMinutes)
}

// FindOverlap returns the first reservation in existing that shares table
// and date with the candidate slot and overlaps it. Reservations that no
// longer block their slot and the one with id excludeID are skipped.
func FindOverlap(tableID, date string, slot Interval, existing []Reservation, excludeID string) *Reservation {
	for i := range existing {
		r := &existing[i]
		if r.ID == excludeID || r.TableID != tableID || r.Date != date || !r.Status.BlocksSlot() {
			continue
		}
		iv, err := r.Interval()
		if err != nil {
			continue
		}
		if slot.Overlaps(iv) {
			return r
		}
	}
	return nil
}
