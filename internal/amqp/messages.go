package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event operations.
const (
	OpPut    = "put"
	OpDelete = "delete"
)

// WeekEvent announces that a saved week changed. It carries the identity
// only; consumers read the record from the store.
type WeekEvent struct {
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	Namespace  string    `json:"sync"`
	WeekEnding string    `json:"weekEnding"`
	UpdatedAt  string    `json:"updatedAt,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewWeekEvent(op, namespace, weekEnding, updatedAt string) *WeekEvent {
	return &WeekEvent{
		ID:         uuid.NewString(),
		Op:         op,
		Namespace:  namespace,
		WeekEnding: weekEnding,
		UpdatedAt:  updatedAt,
		Timestamp:  time.Now().UTC(),
	}
}

func (e *WeekEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WeekEventFromJSON decodes and checks an event body.
func WeekEventFromJSON(data []byte) (*WeekEvent, error) {
	var e WeekEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Op != OpPut && e.Op != OpDelete {
		return nil, fmt.Errorf("unknown op %q", e.Op)
	}
	if e.Namespace == "" || e.WeekEnding == "" {
		return nil, fmt.Errorf("event %s missing identity", e.ID)
	}
	return &e, nil
}
