package reservation

import (
	"strings"
	"time"

	"loteo/internal/pkg/validator"
)

type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusCanceled       Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusCanceled:
		return true
	}
	return false
}

// PipelineStage is the CRM stage a seller tracks. It is independent of Status.
type PipelineStage string

const (
	StageNew         PipelineStage = "new"
	StageContacted   PipelineStage = "contacted"
	StageNegotiating PipelineStage = "negotiating"
	StageSigned      PipelineStage = "signed"
	StageLost        PipelineStage = "lost"
)

func (s PipelineStage) Valid() bool {
	switch s {
	case StageNew, StageContacted, StageNegotiating, StageSigned, StageLost:
		return true
	}
	return false
}

type Buyer struct {
	Name    string `gorm:"type:varchar(120);not null" json:"name" validate:"required,min=2,max=120"`
	Email   string `gorm:"type:varchar(160);not null;index" json:"email" validate:"required,email,max=160"`
	Phone   string `gorm:"type:varchar(20);not null" json:"phone" validate:"required,min=8,max=20"`
	RUT     string `gorm:"type:varchar(12);not null" json:"rut" validate:"required,rut"`
	Address string `gorm:"type:varchar(255)" json:"address,omitempty" validate:"omitempty,max=255"`
}

// Normalize trims input and stores the RUT in canonical form.
func (b Buyer) Normalize() Buyer {
	return Buyer{
		Name:    strings.TrimSpace(b.Name),
		Email:   strings.ToLower(strings.TrimSpace(b.Email)),
		Phone:   strings.TrimSpace(b.Phone),
		RUT:     validator.CanonicalRUT(b.RUT),
		Address: strings.TrimSpace(b.Address),
	}
}

type Reservation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Folio     string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"folio"`
	LotID     int64     `gorm:"not null;index" json:"lot_id"`
	Buyer     Buyer     `gorm:"embedded;embeddedPrefix:buyer_" json:"buyer"`
	Amount    int64     `gorm:"not null" json:"amount"`
	BuyOrder  string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"buy_order"`
	Status    Status    `gorm:"type:varchar(20);not null;index" json:"status"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	SessionID string    `gorm:"type:varchar(61);not null;index" json:"-"`

	// CRM
	AssignedSellerID *int64        `gorm:"index" json:"assigned_seller_id,omitempty"`
	Notes            string        `gorm:"type:text" json:"notes,omitempty"`
	PipelineStage    PipelineStage `gorm:"type:varchar(20);not null;default:'new';index" json:"pipeline_stage"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Reservation) TableName() string { return "reservations" }

func (r *Reservation) IsFinal() bool {
	return r.Status == StatusPaid || r.Status == StatusCanceled
}

// LotLock is the time-boxed hold of one session on one lot. A row whose
// LockedUntil has passed holds nothing, even before the sweep deletes it.
type LotLock struct {
	ID            int64     `gorm:"primaryKey"`
	LotID         int64     `gorm:"uniqueIndex;not null"`
	LockedBy      string    `gorm:"type:varchar(61);not null"`
	LockedUntil   time.Time `gorm:"not null;index"`
	ReservationID string    `gorm:"type:varchar(36)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (LotLock) TableName() string { return "lot_locks" }

func (l *LotLock) IsActive(now time.Time) bool {
	return l.LockedUntil.After(now)
}
