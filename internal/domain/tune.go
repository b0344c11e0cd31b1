package domain

import (
	"context"
	"strings"
)

// MaxTrainingImages is the most photos a single tune may be created from.
const MaxTrainingImages = 20

// TrainingImage is one uploaded photo forwarded to the provider.
type TrainingImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// TrainingRequest represents the parameters for creating a tune
type TrainingRequest struct {
	Title  string
	Images []TrainingImage
}

// GenerationRequest represents the parameters for a prompt job against a tune
type GenerationRequest struct {
	Prompt string
	TuneID string
	Width  int
	Height int
}

// PromptStatusFailed is the status the provider reports for a terminal failure
const PromptStatusFailed = "failed"

// PromptStatus is a single observation of a prompt job on the provider side.
type PromptStatus struct {
	ID     string
	Status string
	Images []string
}

// Ready reports whether the job produced at least one image
func (s *PromptStatus) Ready() bool {
	return len(s.Images) > 0
}

// Failed reports whether the provider gave up on the job
func (s *PromptStatus) Failed() bool {
	return strings.EqualFold(strings.TrimSpace(s.Status), PromptStatusFailed)
}

// Provider defines the operations the relay needs from the tuning service
type Provider interface {
	// CreateTune submits a training job and returns the assigned tune id
	CreateTune(ctx context.Context, req TrainingRequest) (string, error)

	// CreatePrompt submits a generation job and returns the prompt id
	CreatePrompt(ctx context.Context, req GenerationRequest) (string, error)

	// GetPrompt fetches the current state of a prompt job
	GetPrompt(ctx context.Context, tuneID, promptID string) (*PromptStatus, error)

	// Ping checks that the provider accepts the configured credential
	Ping(ctx context.Context) error
}
