package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/slopecast/slopecast-api/internal/errors"
)

const maxRequestBodyBytes = 1 << 20

var errTrailingData = errors.New("request body must contain a single JSON value")

// errorBody is the shape of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// DecodeJSON reads one JSON value from the body into dst, rejecting unknown fields and
// trailing data. An empty body leaves dst untouched. On failure it writes a 400 and
// returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF):
		return true
	case err == nil && dec.More():
		err = errTrailingData
	}
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", err)
		return false
	}
	return true
}

// WriteJSON marshals v before touching the response so an encoding failure still yields a
// clean 500.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(payload, '\n'))
}

// WriteError writes an errorBody. The offending field, when err carries one, is included.
func WriteError(w http.ResponseWriter, code int, errCode string, err error) {
	body := errorBody{Error: errCode, Message: http.StatusText(code)}
	if err != nil {
		body.Message = err.Error()
		body.Field = apperrors.GetField(err)
	}
	WriteJSON(w, code, body)
}
