package amqp

import (
	"encoding/json"
	"time"
)

// CompletionRecordedMessage tells the export worker that a completion was
// written. It carries only the completion ID; the worker fetches the full
// journal row from the database so the message never goes stale.
type CompletionRecordedMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCompletionRecordedMessage(id string) *CompletionRecordedMessage {
	return &CompletionRecordedMessage{
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *CompletionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func CompletionRecordedMessageFromJSON(data []byte) (*CompletionRecordedMessage, error) {
	var msg CompletionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
