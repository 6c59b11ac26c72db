package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/api"
)

// Actions carried by a TransactionEvent.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// TransactionEvent announces a local change that the mirror worker must
// replay. Snapshot is set for created and updated events; consumers with
// access to the backend prefer the current row over the snapshot.
type TransactionEvent struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	Action    string           `json:"action"`
	Version   int64            `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Snapshot  *api.Transaction `json:"snapshot,omitempty"`
}

// NewTransactionEvent creates an event stamped with the current time.
func NewTransactionEvent(id, owner, action string, version int64, snapshot *api.Transaction) *TransactionEvent {
	return &TransactionEvent{
		ID:        id,
		Owner:     owner,
		Action:    action,
		Version:   version,
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	}
}

// ToJSON converts the event to JSON bytes
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate rejects events the worker cannot act on.
func (m *TransactionEvent) Validate() error {
	if m.ID == "" {
		return errors.New("missing transaction id")
	}
	switch m.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

// TransactionEventFromJSON decodes and validates an event.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
