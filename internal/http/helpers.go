package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"splitter/internal/core"
	"splitter/internal/log"
	"splitter/internal/services"
)

const maxBodyBytes = 1 << 16

var errBadRequest = errors.New("bad request")

// flexText accepts a JSON string or number and keeps its text, so API
// clients get the same leniency as the form fields.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or a number: %w", err)
	}
	*f = flexText(n.String())
	return nil
}

// flexCount is flexText for the participant count. A JSON number must be
// whole and is kept as plain integer text, so 1e1 reads as 10.
type flexCount string

func (f *flexCount) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] == '"' || string(data) == "null" {
		var t flexText
		if err := t.UnmarshalJSON(data); err != nil {
			return err
		}
		*f = flexCount(t)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected a string or a number: %w", err)
	}
	v, err := n.Float64()
	if err != nil || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return fmt.Errorf("participants must be a whole number, got %s", n)
	}
	*f = flexCount(strconv.FormatInt(int64(v), 10))
	return nil
}

type splitRequest struct {
	Participants flexCount `json:"participants"`
	Total        flexText `json:"total"`
}

func (r splitRequest) parse() (int, float64) {
	return core.ParseParticipantCount(string(r.Participants)), core.ParseTotal(string(r.Total))
}

type contributionRequest struct {
	Value flexText `json:"value"`
}

type transferResponse struct {
	From          int     `json:"from"`
	To            int     `json:"to"`
	Amount        float64 `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
}

type residualResponse struct {
	Participant   int     `json:"participant"`
	Amount        float64 `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
}

// sessionResponse is the JSON view of a session. Participant numbers are
// 1-based.
type sessionResponse struct {
	ID             string             `json:"id"`
	State          string             `json:"state"`
	Participants   int                `json:"participants"`
	Total          float64            `json:"total"`
	Average        float64            `json:"average"`
	AverageDisplay string             `json:"average_display"`
	Banner         string             `json:"banner"`
	Contributions  []float64          `json:"contributions"`
	Plan           []string           `json:"plan"`
	Transfers      []transferResponse `json:"transfers"`
	Residuals      []residualResponse `json:"residuals"`
}

func newSessionResponse(id string, s core.Session) sessionResponse {
	resp := sessionResponse{
		ID:             id,
		State:          s.State.String(),
		Participants:   s.Request.ParticipantCount,
		Total:          s.Request.TotalAmount,
		Average:        s.Average,
		AverageDisplay: core.FormatAmount(s.Average),
		Banner:         s.AverageBanner(),
		Contributions:  append([]float64{}, s.Contributions...),
		Plan:           append([]string{}, s.Plan.Messages...),
		Transfers:      []transferResponse{},
		Residuals:      []residualResponse{},
	}
	for _, t := range s.Plan.Transfers {
		resp.Transfers = append(resp.Transfers, transferResponse{
			From:          t.From + 1,
			To:            t.To + 1,
			Amount:        t.Amount,
			AmountDisplay: core.FormatAmount(t.Amount),
		})
	}
	for _, r := range s.Plan.Residuals {
		resp.Residuals = append(resp.Residuals, residualResponse{
			Participant:   r.Participant + 1,
			Amount:        r.Amount,
			AmountDisplay: core.FormatAmount(r.Amount),
		})
	}
	return resp
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// parseParticipantIndex converts the 1-based path segment to a zero-based
// index. Range checks are left to the session.
func parseParticipantIndex(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: participant index %q is not a number", errBadRequest, raw)
	}
	return n - 1, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes and log error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNonPositiveCount), errors.Is(err, core.ErrNonPositiveTotal),
		errors.Is(err, core.ErrTooManyParticipants):
		return http.StatusUnprocessableEntity, log.ErrorTypeValidation
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, core.ErrIndexOutOfRange), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, log.ErrorTypeValidation
	default:
		return http.StatusInternalServerError, log.ErrorTypeInternal
	}
}

// writeError logs err and writes it as a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		fields := log.NewFields()
		fields["error_type"] = errType
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, op, fields)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldError, err.Error(),
			"error_type", errType)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: log.RequestID(r.Context())})
}
