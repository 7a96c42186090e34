package scheduler

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/hibiken/asynq"
)

const TaskRealtimeBroadcast = "realtime.broadcast"

var ErrInvalidBroadcast = errors.New("broadcast requires room and event")

// BroadcastPayload is a room broadcast to deliver at a later time.
type BroadcastPayload struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewBroadcastTask(payload BroadcastPayload) (*asynq.Task, error) {
	if payload.Room == "" || payload.Event == "" {
		return nil, ErrInvalidBroadcast
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRealtimeBroadcast, data), nil
}

func ParseBroadcastPayload(task *asynq.Task) (BroadcastPayload, error) {
	var payload BroadcastPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BroadcastPayload{}, err
	}
	if payload.Room == "" || payload.Event == "" {
		return BroadcastPayload{}, ErrInvalidBroadcast
	}
	return payload, nil
}
