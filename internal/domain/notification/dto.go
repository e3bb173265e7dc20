package notification

import "time"

// PaidEvent is sent once per paid reservation to the external workflow
// service (CRM automation, confirmation email).
type PaidEvent struct {
	ReservationID     string    `json:"reservation_id"`
	Folio             string    `json:"folio"`
	LotID             int64     `json:"lot_id"`
	LotNumber         int       `json:"lot_number"`
	Stage             int       `json:"stage"`
	Amount            int64     `json:"amount"`
	BuyOrder          string    `json:"buy_order"`
	AuthorizationCode string    `json:"authorization_code"`
	CardLastDigits    string    `json:"card_last_digits,omitempty"`
	BuyerName         string    `json:"buyer_name"`
	BuyerEmail        string    `json:"buyer_email"`
	BuyerPhone        string    `json:"buyer_phone"`
	BuyerRUT          string    `json:"buyer_rut"`
	PaidAt            time.Time `json:"paid_at"`
}
