package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"courtsplit/internal/dto"
)

// SettlementRequestMessage asks a worker to compute one settlement.
type SettlementRequestMessage struct {
	RequestID   string                `json:"request_id"`
	SubmittedAt time.Time             `json:"submitted_at"`
	Request     dto.SettlementRequest `json:"request"`
}

// SettlementResultMessage carries either a computed settlement or the error
// that prevented it. It is both the worker reply and the settlement.computed event.
type SettlementResultMessage struct {
	RequestID  string                  `json:"request_id"`
	ComputedAt time.Time               `json:"computed_at"`
	Title      string                  `json:"title,omitempty"`
	Result     *dto.SettlementResponse `json:"result,omitempty"`
	Error      *dto.ErrorResponse      `json:"error,omitempty"`
}

// NewSettlementRequestMessage wraps req with a fresh request ID.
func NewSettlementRequestMessage(req dto.SettlementRequest) *SettlementRequestMessage {
	return &SettlementRequestMessage{
		RequestID:   uuid.NewString(),
		SubmittedAt: time.Now(),
		Request:     req,
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementRequestMessageFromJSON decodes a request; a missing request ID is an error.
func SettlementRequestMessageFromJSON(data []byte) (*SettlementRequestMessage, error) {
	var msg SettlementRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RequestID == "" {
		return nil, errors.New("missing request_id")
	}
	return &msg, nil
}

// NewSettlementResult builds a successful result message.
func NewSettlementResult(requestID, title string, res dto.SettlementResponse) *SettlementResultMessage {
	return &SettlementResultMessage{
		RequestID:  requestID,
		ComputedAt: time.Now(),
		Title:      title,
		Result:     &res,
	}
}

// NewSettlementFailure builds a result message reporting err.
func NewSettlementFailure(requestID, title string, err error) *SettlementResultMessage {
	e := dto.NewErrorResponse(err)
	return &SettlementResultMessage{
		RequestID:  requestID,
		ComputedAt: time.Now(),
		Title:      title,
		Error:      &e,
	}
}

// ToJSON converts the message to JSON bytes
func (m *SettlementResultMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SettlementResultMessageFromJSON(data []byte) (*SettlementResultMessage, error) {
	var msg SettlementResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
