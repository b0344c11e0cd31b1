package service

import (
	"context"
	"sync"
	"time"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/domain"
)

// mockProvider answers polls from a scripted list; the last entry repeats.
type mockProvider struct {
	mu sync.Mutex

	tuneID      string
	promptID    string
	createErr   error
	pingErr     error
	statuses    []domain.PromptStatus
	pollErrAt   int
	pollErr     error
	tuneCalls   []domain.TrainingRequest
	promptCalls []domain.GenerationRequest
	polls       int
}

func (m *mockProvider) CreateTune(ctx context.Context, req domain.TrainingRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tuneCalls = append(m.tuneCalls, req)
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.tuneID, nil
}

func (m *mockProvider) CreatePrompt(ctx context.Context, req domain.GenerationRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptCalls = append(m.promptCalls, req)
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.promptID, nil
}

func (m *mockProvider) GetPrompt(ctx context.Context, tuneID, promptID string) (*domain.PromptStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if m.pollErr != nil && m.polls == m.pollErrAt {
		return nil, m.pollErr
	}
	if len(m.statuses) == 0 {
		return &domain.PromptStatus{ID: promptID}, nil
	}
	i := m.polls - 1
	if i >= len(m.statuses) {
		i = len(m.statuses) - 1
	}
	st := m.statuses[i]
	return &st, nil
}

func (m *mockProvider) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *mockProvider) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Astria.APIKey = "test-key"
	cfg.Poll.Interval = time.Millisecond
	cfg.Poll.MaxAttempts = 5
	return cfg
}
