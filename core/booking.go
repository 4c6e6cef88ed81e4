package core

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingCommitted BookingStatus = "committed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingCommitted, BookingCancelled},
	BookingCommitted: {BookingCancelled, BookingCompleted},
}

// CanTransitionTo reports whether next is a legal successor of s.
// Cancelled and completed are terminal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Metadata is free-form, non-sensitive booking annotation (title,
// description). It is part of the commitment hash and never changes after
// the booking is created.
type Metadata map[string]string

// Booking is the off-chain record of a time slot reservation.
type Booking struct {
	ID              string
	ProviderAddress string
	ClientAddress   string // Empty when the booking has no client
	StartTime       time.Time
	EndTime         time.Time
	CommitmentHash  string
	Status          BookingStatus
	Metadata        Metadata
	CommitTx        string // Ledger transaction that anchored the booking
	CancelTx        string // Ledger transaction that released it
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transition describes a compare-and-set status change of a booking.
type Transition struct {
	From   BookingStatus
	To     BookingStatus
	TxHash string // Recorded as CommitTx or CancelTx depending on To
	At     time.Time
}

// Apply returns a copy of b with the transition applied. It does not check
// b.Status against t.From; stores do that atomically.
func (t Transition) Apply(b Booking) Booking {
	b.Status = t.To
	b.UpdatedAt = t.At
	switch t.To {
	case BookingCommitted:
		if t.TxHash != "" {
			b.CommitTx = t.TxHash
		}
	case BookingCancelled:
		if t.TxHash != "" {
			b.CancelTx = t.TxHash
		}
	}
	return b
}

// Clone returns a deep copy of b, so callers cannot mutate stored metadata.
func (b Booking) Clone() Booking {
	if b.Metadata != nil {
		md := make(Metadata, len(b.Metadata))
		for k, v := range b.Metadata {
			md[k] = v
		}
		b.Metadata = md
	}
	return b
}
