package bandcamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingKey is returned by New without a developer key
	ErrMissingKey = errors.New("a developer key is required for all API access")
	// ErrMissingBandQuery is returned when a BandQuery has no field set
	ErrMissingBandQuery = errors.New("one of band id, subdomain or url is required")
)

// APIError is an error reported by the API inside a response body.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bandcamp API error: %s", e.Message)
}

// checkAPIError returns an *APIError when data is an error document:
//
//	{"error": true, "error_message": "..."}
func checkAPIError(data []byte) error {
	var body struct {
		Error        json.RawMessage `json:"error"`
		ErrorMessage string          `json:"error_message"`
	}
	// Bodies that are not JSON objects are reported by the caller's decoding
	if err := json.Unmarshal(data, &body); err != nil {
		return nil
	}

	switch strings.TrimSpace(string(body.Error)) {
	case "", "null", "false":
		return nil
	}

	message := body.ErrorMessage
	if message == "" {
		var s string
		if err := json.Unmarshal(body.Error, &s); err == nil {
			message = s
		} else {
			message = string(body.Error)
		}
	}
	return &APIError{Message: message}
}
