package lotfeed

import "time"

const (
	EventReserved = "reserved"
	EventSold     = "sold"
	EventReleased = "released"
)

// Event is what the storefront map receives. It never carries buyer data.
type Event struct {
	Type   string     `json:"type"`
	LotID  int64      `json:"lot_id"`
	Stage  int        `json:"stage"`
	Status string     `json:"status"`
	Until  *time.Time `json:"until,omitempty"`
}

type clientCommand struct {
	Type  string `json:"type"`
	Stage int    `json:"stage"`
}
