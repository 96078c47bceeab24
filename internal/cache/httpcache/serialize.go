package httpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
)

const PREFIX = "---HTTP-RESPONSE---\n"

// Serialize dumps the http.Response (status line, headers and body) behind PREFIX.
// The body of resp is replaced by an in-memory reader over the same bytes.
func Serialize(resp *http.Response) ([]byte, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		_ = resp.Body.Close()
	}

	// DumpResponse rewrites the body itself; give it a fresh copy
	resp.Body = io.NopCloser(bytes.NewReader(body))
	b, err := httputil.DumpResponse(resp, true)
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return append([]byte(PREFIX), b...), nil
}

func Deserialize(b []byte) (*http.Response, error) {
	if !bytes.HasPrefix(b, []byte(PREFIX)) {
		n := min(len(b), len(PREFIX))
		return nil, fmt.Errorf("invalid prefix: expected '%s', got '%s'", PREFIX, string(b[:n]))
	}

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b[len(PREFIX):])), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}

	return resp, nil
}
