package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderProbe_ReadyBeforeFirstRun(t *testing.T) {
	probe := NewProviderProbe(testConfig(), &mockProvider{}, nil)

	ok, reason := probe.Ready()
	assert.True(t, ok)
	assert.Empty(t, reason)
	assert.True(t, probe.LastRun().IsZero())
}

func TestProviderProbe_TracksLastResult(t *testing.T) {
	p := &mockProvider{pingErr: errors.New("401 unauthorized")}
	probe := NewProviderProbe(testConfig(), p, nil)

	assert.Error(t, probe.Run(context.Background()))
	ok, reason := probe.Ready()
	assert.False(t, ok)
	assert.Contains(t, reason, "401")
	assert.False(t, probe.LastRun().IsZero())

	p.pingErr = nil
	assert.NoError(t, probe.Run(context.Background()))
	ok, _ = probe.Ready()
	assert.True(t, ok)
}

func TestProviderProbe_NoCredential(t *testing.T) {
	cfg := testConfig()
	cfg.Astria.APIKey = ""
	probe := NewProviderProbe(cfg, &mockProvider{}, nil)

	ok, reason := probe.Ready()
	assert.False(t, ok)
	assert.Contains(t, reason, "API key")
	assert.Error(t, probe.Run(context.Background()))
}
