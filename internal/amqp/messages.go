package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"splitter/internal/core"
)

// SettlementMessage announces a computed settlement plan. Participant
// numbers are 1-based, matching the "User N" wording of the instructions.
type SettlementMessage struct {
	SessionID    string            `json:"session_id"`
	Participants int               `json:"participants"`
	Total        float64           `json:"total"`
	Average      float64           `json:"average"`
	Instructions []string          `json:"instructions"`
	Transfers    []TransferPayload `json:"transfers,omitempty"`
	Residuals    []ResidualPayload `json:"residuals,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

type TransferPayload struct {
	From   int     `json:"from"`
	To     int     `json:"to"`
	Amount float64 `json:"amount"`
}

type ResidualPayload struct {
	Participant int     `json:"participant"`
	Amount      float64 `json:"amount"`
}

var ErrInvalidMessage = errors.New("invalid settlement message")

// NewSettlementMessage snapshots the plan of a settled session
func NewSettlementMessage(sessionID string, s core.Session) *SettlementMessage {
	msg := &SettlementMessage{
		SessionID:    sessionID,
		Participants: s.Request.ParticipantCount,
		Total:        s.Request.TotalAmount,
		Average:      s.Average,
		Instructions: append([]string(nil), s.Plan.Messages...),
		Timestamp:    time.Now(),
	}
	for _, t := range s.Plan.Transfers {
		msg.Transfers = append(msg.Transfers, TransferPayload{From: t.From + 1, To: t.To + 1, Amount: t.Amount})
	}
	for _, r := range s.Plan.Residuals {
		msg.Residuals = append(msg.Residuals, ResidualPayload{Participant: r.Participant + 1, Amount: r.Amount})
	}
	return msg
}

// Validate checks the invariants a consumer relies on
func (m *SettlementMessage) Validate() error {
	if m.SessionID == "" {
		return errors.Join(ErrInvalidMessage, errors.New("missing session id"))
	}
	if m.Participants <= 0 || len(m.Instructions) != m.Participants {
		return errors.Join(ErrInvalidMessage, errors.New("instructions do not match participant count"))
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *SettlementMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SettlementMessageFromJSON creates a message from JSON bytes
func SettlementMessageFromJSON(data []byte) (*SettlementMessage, error) {
	var msg SettlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
