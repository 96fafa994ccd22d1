package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/abhisek/wordmaster/internal/attempt"
	"github.com/abhisek/wordmaster/internal/cooldown"
	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/settlement"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/abhisek/wordmaster/internal/testrequest"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterMinutes int    `json:"retry_after_minutes,omitempty"`
}

var errInvalidBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// decode reads the body, validates it against schema and unmarshals it
// into dst. Failures wrap errInvalidBody.
func decode(w http.ResponseWriter, r *http.Request, schema *bodySchema, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := validateBody(schema, raw); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

// writeError maps a service error onto a status code and writes it. Unknown
// errors become 500 without leaking their text.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterMinutes*60))
	}
	if status >= 500 {
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, ErrorResponse) {
	var active *cooldown.ActiveError
	switch {
	case errors.As(err, &active):
		return http.StatusTooManyRequests, ErrorResponse{
			Error:             active.Error(),
			Code:              "COOLDOWN_ACTIVE",
			RetryAfterMinutes: active.RemainingMinutes,
		}
	case errors.Is(err, errInvalidBody),
		errors.Is(err, students.ErrEmptyName),
		errors.Is(err, students.ErrNameTooLong),
		errors.Is(err, attempt.ErrInvalidScore),
		errors.Is(err, ledger.ErrNegativeBalance),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not found", Code: "NOT_FOUND"}
	case errors.Is(err, students.ErrDuplicateName):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "DUPLICATE_NAME"}
	case errors.Is(err, testrequest.ErrInvalidTransition),
		errors.Is(err, testrequest.ErrWrongStudent),
		errors.Is(err, settlement.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_TRANSITION"}
	case errors.Is(err, settlement.ErrBelowMinimum):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "BELOW_MINIMUM"}
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "INSUFFICIENT_BALANCE"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "INTERNAL"}
	}
}

// limitParam parses ?limit=, falling back to def on absence or garbage.
func limitParam(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}
