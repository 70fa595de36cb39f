package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-realtime-floor/internal/apperr"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation,
		apperr.KindInsufficientStock,
		apperr.KindProductUnavailable,
		apperr.KindInvalidTransition,
		apperr.KindOverpayment,
		apperr.KindReservationOverlap,
		apperr.KindInvalidTableStatus:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// errorWriter renders apperr kinds. Internal details only leave the
// process in development.
type errorWriter struct {
	log     *zap.Logger
	verbose bool
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)
	body := errorBody{Code: string(kind), Message: err.Error()}

	var ae *apperr.Error
	if errors.As(err, &ae) && kind != apperr.KindInternal {
		body.Message = ae.Message
		body.Fields = ae.Fields
	}
	if code >= http.StatusInternalServerError {
		e.log.Error("request failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		if !e.verbose {
			body.Message = "internal server error"
		}
	}
	writeJSON(w, code, map[string]any{"error": body})
}

// decode reads a JSON body, rejecting unknown fields and trailing data.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation(map[string]string{"body": "invalid json: " + err.Error()})
	}
	if dec.More() {
		return apperr.Validation(map[string]string{"body": "unexpected data after json object"})
	}
	return nil
}
