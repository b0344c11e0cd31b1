package astria

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/basel-ax/tunerelay/internal/domain"
)

// Depending on the API version the provider names the job identifier
// either "uid" or "id", as a string or a number.
type idEnvelope struct {
	UID json.RawMessage `json:"uid"`
	ID  json.RawMessage `json:"id"`
}

// extractID returns the job identifier from a submission response
func extractID(body []byte) (string, error) {
	var env idEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &domain.UpstreamError{Op: "decode id", StatusCode: http.StatusOK, Body: body, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	for _, raw := range []json.RawMessage{env.UID, env.ID} {
		if id := rawID(raw); id != "" {
			return id, nil
		}
	}

	return "", &domain.UpstreamError{Op: "decode id", StatusCode: http.StatusOK, Body: body, Err: fmt.Errorf("response has no id or uid")}
}

func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}
