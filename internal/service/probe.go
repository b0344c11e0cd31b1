package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/domain"
	"github.com/basel-ax/tunerelay/internal/infrastructure/metrics"
)

var errNoCredential = errors.New("provider API key is not set")

// ProviderProbe periodically checks that the provider accepts the configured key.
// Its last result backs the readiness endpoint.
type ProviderProbe struct {
	provider domain.Provider
	config   *config.Config
	logger   *zerolog.Logger

	mu      sync.RWMutex
	lastErr error
	lastRun time.Time
}

// NewProviderProbe creates a probe; it reports ready until the first run.
func NewProviderProbe(cfg *config.Config, provider domain.Provider, logger *zerolog.Logger) *ProviderProbe {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ProviderProbe{provider: provider, config: cfg, logger: logger}
}

// Run performs one check and records the outcome
func (p *ProviderProbe) Run(ctx context.Context) error {
	var err error
	if !p.config.HasCredential() {
		err = errNoCredential
	} else {
		ctx, cancel := context.WithTimeout(ctx, p.config.Astria.HTTPTimeout)
		defer cancel()
		err = p.provider.Ping(ctx)
	}

	p.mu.Lock()
	p.lastErr = err
	p.lastRun = time.Now()
	p.mu.Unlock()

	metrics.SetProviderUp(err == nil)
	if err != nil {
		p.logger.Warn().Err(err).Msg("provider probe failed")
		return err
	}
	p.logger.Debug().Msg("provider probe ok")
	return nil
}

// Ready reports whether the relay can serve requests, with the reason when it cannot
func (p *ProviderProbe) Ready() (bool, string) {
	if !p.config.HasCredential() {
		return false, errNoCredential.Error()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.lastErr != nil {
		return false, p.lastErr.Error()
	}
	return true, ""
}

// LastRun returns when the probe last ran; zero if it never did
func (p *ProviderProbe) LastRun() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}
