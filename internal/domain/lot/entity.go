package lot

import "time"

// Status is the persisted lot status.
type Status string

const (
	StatusAvailable Status = "available"
	StatusReserved  Status = "reserved"
	StatusSold      Status = "sold"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusSold:
		return true
	}
	return false
}

type Lot struct {
	ID             int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Number         int        `gorm:"not null" json:"number"`
	Stage          int        `gorm:"not null;index" json:"stage"`
	AreaM2         float64    `gorm:"not null" json:"area_m2"`
	Price          int64      `gorm:"not null" json:"price"`
	ReservationFee int64      `gorm:"not null;default:0" json:"reservation_fee"`
	Status         Status     `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	ReservedAt     *time.Time `json:"reserved_at,omitempty"`
	ReservedBy     string     `gorm:"type:varchar(64)" json:"-"`
	ReservedUntil  *time.Time `gorm:"index" json:"reserved_until,omitempty"`
	OrderID        string     `gorm:"type:varchar(26);index" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Lot) TableName() string { return "lots" }

// StateKind distinguishes the three shapes a lot can be in.
type StateKind string

const (
	StateAvailable StateKind = "available"
	StateHeld      StateKind = "held"
	StateSold      StateKind = "sold"
)

// State is the explicit variant behind the status column: Available, Held by
// an owner until ExpiresAt, or Sold. Owner and ExpiresAt are set only for Held.
type State struct {
	Kind      StateKind
	Owner     string
	ExpiresAt time.Time
}

// State derives the effective state at now. A reservation whose window has
// passed reads as available even before the sweep rewrites the row.
func (l *Lot) State(now time.Time) State {
	switch l.Status {
	case StatusSold:
		return State{Kind: StateSold}
	case StatusReserved:
		if l.ReservedUntil != nil && l.ReservedUntil.After(now) {
			return State{Kind: StateHeld, Owner: l.ReservedBy, ExpiresAt: *l.ReservedUntil}
		}
	}
	return State{Kind: StateAvailable}
}

// EffectiveStatus maps State back onto the public status vocabulary.
func (l *Lot) EffectiveStatus(now time.Time) Status {
	switch l.State(now).Kind {
	case StateSold:
		return StatusSold
	case StateHeld:
		return StatusReserved
	default:
		return StatusAvailable
	}
}

// FeeOr returns the lot's reservation fee, or def when the lot has none.
func (l *Lot) FeeOr(def int64) int64 {
	if l.ReservationFee > 0 {
		return l.ReservationFee
	}
	return def
}
