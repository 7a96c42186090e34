package transport

import (
	"time"

	"github.com/goccy/go-json"
)

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed processing shipped out_for_delivery delivered cancelled returned"`
	Note   string `json:"note" validate:"max=500"`
}

type LocationRequest struct {
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
	Heading *float64 `json:"heading" validate:"omitempty,min=0,max=360"`
}

type SupportMessageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type BroadcastRequest struct {
	Room   string          `json:"room" validate:"required"`
	Event  string          `json:"event" validate:"required,max=64"`
	Data   json.RawMessage `json:"data"`
	SendAt *time.Time      `json:"sendAt"`
}

type BroadcastResponse struct {
	Room      string     `json:"room"`
	Event     string     `json:"event"`
	Scheduled bool       `json:"scheduled"`
	TaskID    string     `json:"taskId,omitempty"`
	SendAt    *time.Time `json:"sendAt,omitempty"`
}

type StatsResponse struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}
