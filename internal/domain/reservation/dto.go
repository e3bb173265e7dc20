package reservation

import "time"

type CreateReservationRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	RUT     string `json:"rut"`
	Address string `json:"address"`
}

func (r CreateReservationRequest) Buyer() Buyer {
	return Buyer{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		RUT:     r.RUT,
		Address: r.Address,
	}.Normalize()
}

// PublicResponse is what the buyer sees: no CRM fields, no contact details
// beyond their own name.
type PublicResponse struct {
	ID         string     `json:"id"`
	Folio      string     `json:"folio"`
	LotID      int64      `json:"lot_id"`
	BuyerName  string     `json:"buyer_name"`
	Amount     int64      `json:"amount"`
	Status     Status     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ToPublicResponse(r *Reservation) PublicResponse {
	return PublicResponse{
		ID:         r.ID,
		Folio:      r.Folio,
		LotID:      r.LotID,
		BuyerName:  r.Buyer.Name,
		Amount:     r.Amount,
		Status:     r.Status,
		ExpiresAt:  r.ExpiresAt,
		PaidAt:     r.PaidAt,
		CanceledAt: r.CanceledAt,
		CreatedAt:  r.CreatedAt,
	}
}

type CreateReservationResponse struct {
	Reservation PublicResponse `json:"reservation"`
	Token       string         `json:"token"`
	URL         string         `json:"url"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// UpdatePipelineRequest: absent fields are left as they are; an
// assigned_seller_id of 0 unassigns.
type UpdatePipelineRequest struct {
	AssignedSellerID *int64         `json:"assigned_seller_id"`
	Notes            *string        `json:"notes" validate:"omitempty,max=2000"`
	PipelineStage    *PipelineStage `json:"pipeline_stage"`
}

func (r UpdatePipelineRequest) toUpdate() PipelineUpdate {
	return PipelineUpdate{
		AssignedSellerID: r.AssignedSellerID,
		Notes:            r.Notes,
		Stage:            r.PipelineStage,
	}
}

type ListResponse struct {
	Reservations []Reservation `json:"reservations"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
}
