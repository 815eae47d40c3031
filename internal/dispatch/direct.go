package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/vecihi-bot/internal/models"
)

// MaxBodyBytes bounds the inbound event body
const MaxBodyBytes = 1 << 20

var (
	// ErrNoMessage is returned when the event has no message field
	ErrNoMessage = fmt.Errorf("%w: No message was provided", models.ErrValidation)

	// ErrInvalidBody is returned when the event body is not a usable JSON object
	ErrInvalidBody = fmt.Errorf("%w: Invalid request body", models.ErrValidation)
)

// Answerer answers a single question
type Answerer interface {
	Answer(ctx context.Context, question string) (*models.InferenceResponse, error)
}

// Response is the status code and JSON body returned to the caller
type Response struct {
	StatusCode int
	Body       string
}

// Direct answers events synchronously in the response body
type Direct struct {
	answerer Answerer
	logger   zerolog.Logger
}

// NewDirect creates a direct mode dispatcher
func NewDirect(answerer Answerer, logger zerolog.Logger) *Direct {
	return &Direct{
		answerer: answerer,
		logger:   logger.With().Str("component", "direct").Logger(),
	}
}

// DecodeMessage extracts the message from an event body. The body may be
// wrapped once: {"body": "<json string>"} is unwrapped before the lookup.
// A null message counts as missing.
func DecodeMessage(body []byte) (string, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return "", err
	}

	if inner, ok := fields["body"]; ok {
		var nested string
		if err := json.Unmarshal(inner, &nested); err == nil {
			fields, err = decodeObject([]byte(nested))
			if err != nil {
				return "", err
			}
		}
	}

	raw, ok := fields["message"]
	if !ok || isNull(raw) {
		return "", ErrNoMessage
	}

	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return "", fmt.Errorf("%w: message must be a string", ErrInvalidBody)
	}

	return message, nil
}

// Handle processes one event. Errors never escape: they are mapped to a
// 400 or 500 response.
func (d *Direct) Handle(ctx context.Context, body []byte) Response {
	d.logger.Info().Int("size", len(body)).Msg("New event")
	d.logger.Debug().Bytes("event", body).Msg("Event body")

	message, err := DecodeMessage(body)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Rejected event")
		if errors.Is(err, ErrNoMessage) {
			return jsonResponse(http.StatusBadRequest, map[string]string{"error": "No message was provided"})
		}
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	d.logger.Info().Int("length", len(message)).Msg("New message")
	d.logger.Debug().Str("message", message).Msg("Message text")

	resp, err := d.answerer.Answer(ctx, message)
	if err != nil {
		d.logger.Error().Err(err).Msg("Handling failed")
		return jsonResponse(http.StatusInternalServerError, map[string]string{"Internal Error": err.Error()})
	}

	return jsonResponse(http.StatusOK, resp)
}

// ServeHTTP adapts Handle to net/http
func (d *Direct) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var resp Response
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to read event body")
		resp = jsonResponse(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	} else {
		resp = d.Handle(r.Context(), body)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	// The literal null decodes into a nil map
	if fields == nil {
		return nil, fmt.Errorf("%w: body is null", ErrInvalidBody)
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func jsonResponse(status int, payload any) Response {
	data, err := json.Marshal(payload)
	if err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       fmt.Sprintf(`{"Internal Error": %q}`, err.Error()),
		}
	}
	return Response{StatusCode: status, Body: string(data)}
}
