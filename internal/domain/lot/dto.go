package lot

import "time"

// Response is the public view of a lot. The holder's session id is never exposed.
type Response struct {
	ID             int64      `json:"id"`
	Number         int        `json:"number"`
	Stage          int        `json:"stage"`
	AreaM2         float64    `json:"area_m2"`
	Price          int64      `json:"price"`
	ReservationFee int64      `json:"reservation_fee"`
	Status         Status     `json:"status"`
	HeldUntil      *time.Time `json:"held_until,omitempty"`
}

func ToResponse(l *Lot, now time.Time, defaultFee int64) Response {
	resp := Response{
		ID:             l.ID,
		Number:         l.Number,
		Stage:          l.Stage,
		AreaM2:         l.AreaM2,
		Price:          l.Price,
		ReservationFee: l.FeeOr(defaultFee),
		Status:         l.EffectiveStatus(now),
	}
	if st := l.State(now); st.Kind == StateHeld {
		until := st.ExpiresAt
		resp.HeldUntil = &until
	}
	return resp
}

type StageSummary struct {
	Stage     int   `json:"stage"`
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Sold      int64 `json:"sold"`
}

type Summary struct {
	Total    int64            `json:"total"`
	ByStatus map[Status]int64 `json:"by_status"`
	Stages   []StageSummary   `json:"stages"`
}
