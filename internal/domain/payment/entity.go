package payment

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusInitialized = "INITIALIZED"
	StatusAuthorized  = "AUTHORIZED"
	StatusFailed      = "FAILED"
	// StatusAborted marks a checkout the buyer abandoned on the Webpay form.
	StatusAborted = "ABORTED"
)

// Transaction is one Webpay transaction, created right after a reservation
// and updated once with the gateway verdict.
type Transaction struct {
	ID                 int64          `gorm:"primaryKey" json:"id"`
	Token              string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	BuyOrder           string         `gorm:"type:varchar(26);index;not null" json:"buy_order"`
	SessionID          string         `gorm:"type:varchar(61);not null" json:"session_id"`
	Amount             int64          `gorm:"not null" json:"amount"`
	ReservationID      string         `gorm:"type:varchar(36);index;not null" json:"reservation_id"`
	LotID              int64          `gorm:"index;not null" json:"lot_id"`
	Status             string         `gorm:"type:varchar(32);not null;default:'INITIALIZED'" json:"status"`
	ResponseCode       *int           `json:"response_code,omitempty"`
	AuthorizationCode  string         `gorm:"type:varchar(16)" json:"authorization_code,omitempty"`
	PaymentTypeCode    string         `gorm:"type:varchar(8)" json:"payment_type_code,omitempty"`
	InstallmentsNumber int            `json:"installments_number"`
	CardLastDigits     string         `gorm:"type:varchar(8)" json:"card_last_digits,omitempty"`
	TransactionDate    *time.Time     `json:"transaction_date,omitempty"`
	RawResponse        datatypes.JSON `json:"-"`
	CommittedAt        *time.Time     `json:"committed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Transaction) TableName() string { return "payment_transactions" }

// Finalized reports whether the gateway verdict has already been recorded.
func (t *Transaction) Finalized() bool {
	return t.Status != StatusInitialized
}
