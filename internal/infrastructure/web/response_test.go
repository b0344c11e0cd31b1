package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/tunerelay/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.Validationf("prompt is required"), http.StatusBadRequest},
		{"configuration", fmt.Errorf("%w: no key", domain.ErrConfiguration), http.StatusInternalServerError},
		{"timeout", fmt.Errorf("%w: 30 checks", domain.ErrTimeout), http.StatusRequestTimeout},
		{"generation failed", fmt.Errorf("%w: p1", domain.ErrGenerationFailed), http.StatusInternalServerError},
		{"upstream", fmt.Errorf("wrap: %w", &domain.UpstreamError{Op: "x", StatusCode: 500, Body: []byte("oops")}), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := mapError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMapError_UpstreamDetails(t *testing.T) {
	_, body := mapError(&domain.UpstreamError{Op: "x", StatusCode: 422, Body: []byte("plain text")})
	assert.Equal(t, "plain text", body.Details)

	_, body = mapError(&domain.UpstreamError{Op: "x", Err: errors.New("dial tcp")})
	assert.Nil(t, body.Details)

	b, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "details")
}

func TestFlexID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"tune_id":"abc"}`, "abc", true},
		{`{"tune_id":123}`, "123", true},
		{`{"tune_id":null}`, "", true},
		{`{}`, "", true},
		{`{"tune_id":true}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var req generateRequest
			err := json.Unmarshal([]byte(tt.in), &req)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(req.TuneID))
		})
	}
}
