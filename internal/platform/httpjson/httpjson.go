// Package httpjson holds the JSON request/response helpers shared by handlers.
package httpjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"suraksha-jal/internal/schema"
)

const maxBodyBytes = 20 << 20

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

func Error(w http.ResponseWriter, status int, message string) {
	Write(w, status, errorBody{Error: message})
}

// ValidationError writes a 400 with the field list when err carries one.
func ValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		body.Error = "Please check the highlighted fields."
		body.Fields = verr.Fields
	}
	Write(w, http.StatusBadRequest, body)
}

// Decode reads a JSON body into v, limited to 20 MiB to fit captured photos.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	return nil
}
