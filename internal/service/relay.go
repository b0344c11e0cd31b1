package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/basel-ax/tunerelay/internal/config"
	"github.com/basel-ax/tunerelay/internal/domain"
	"github.com/basel-ax/tunerelay/internal/infrastructure/logging"
	"github.com/basel-ax/tunerelay/internal/infrastructure/metrics"
)

const (
	maxPromptLength = 999
	maxDimension    = 2048
)

// RelayService forwards training and generation jobs to the provider
type RelayService struct {
	provider domain.Provider
	config   *config.Config
	logger   *zerolog.Logger
}

// NewRelayService creates a new relay service
func NewRelayService(cfg *config.Config, provider domain.Provider, logger *zerolog.Logger) *RelayService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RelayService{
		provider: provider,
		config:   cfg,
		logger:   logger,
	}
}

// Train submits a tune built from the uploaded images and returns its id
func (s *RelayService) Train(ctx context.Context, req domain.TrainingRequest) (tuneID string, err error) {
	defer func() { metrics.Request("train", outcome(err)) }()

	if !s.config.HasCredential() {
		return "", fmt.Errorf("%w: provider API key is not set", domain.ErrConfiguration)
	}
	if err := validateTraining(req); err != nil {
		return "", err
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		req.Title = "tune-" + uuid.NewString()[:8]
	}

	log := logging.With(ctx, s.logger)
	log.Info().Str("title", req.Title).Int("images", len(req.Images)).Msg("submitting tune")

	tuneID, err = s.provider.CreateTune(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("tune submission failed")
		return "", fmt.Errorf("failed to create tune: %w", err)
	}

	log.Info().Str("tune_id", tuneID).Msg("tune created")
	return tuneID, nil
}

// Generate submits a prompt and waits for its first image
func (s *RelayService) Generate(ctx context.Context, req domain.GenerationRequest) (imageURL string, err error) {
	defer func() { metrics.Request("generate", outcome(err)) }()

	if !s.config.HasCredential() {
		return "", fmt.Errorf("%w: provider API key is not set", domain.ErrConfiguration)
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	req.TuneID = strings.TrimSpace(req.TuneID)
	if err := validateGeneration(req); err != nil {
		return "", err
	}

	ctx = logging.WithTuneID(ctx, req.TuneID)
	log := logging.With(ctx, s.logger)

	originalLength := utf8.RuneCountInString(req.Prompt)
	req.Prompt = truncatePrompt(req.Prompt, maxPromptLength)
	if originalLength > maxPromptLength {
		log.Warn().Int("from", originalLength).Int("to", maxPromptLength).Msg("prompt truncated")
	}

	log.Info().Str("prompt", logging.Redact(req.Prompt, s.config.Dev)).Msg("submitting prompt")

	promptID, err := s.provider.CreatePrompt(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("prompt submission failed")
		return "", fmt.Errorf("failed to create prompt: %w", err)
	}

	return s.WaitForPrompt(ctx, req.TuneID, promptID)
}

// WaitForPrompt polls the prompt until it yields an image, fails, or the
// attempt budget runs out. Each attempt sleeps first, then checks once.
func (s *RelayService) WaitForPrompt(ctx context.Context, tuneID, promptID string) (string, error) {
	log := logging.With(ctx, s.logger).With().Str("prompt_id", promptID).Logger()
	start := time.Now()

	for attempt := 1; attempt <= s.config.Poll.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.config.Poll.Interval):
		}

		metrics.PollAttempt()
		status, err := s.provider.GetPrompt(ctx, tuneID, promptID)
		if err != nil {
			// transport and HTTP errors end the wait; only "not ready" is retried
			log.Error().Err(err).Int("attempt", attempt).Msg("status check failed")
			metrics.ObserveGeneration("upstream", time.Since(start))
			return "", fmt.Errorf("failed to check prompt status: %w", err)
		}

		switch {
		case status.Ready():
			log.Info().Int("attempt", attempt).Msg("prompt ready")
			metrics.ObserveGeneration("ok", time.Since(start))
			return status.Images[0], nil
		case status.Failed():
			log.Warn().Int("attempt", attempt).Msg("prompt failed on provider")
			metrics.ObserveGeneration("failed", time.Since(start))
			return "", fmt.Errorf("%w: prompt %s reported status %q", domain.ErrGenerationFailed, promptID, status.Status)
		}

		log.Debug().Int("attempt", attempt).Int("max_attempts", s.config.Poll.MaxAttempts).Str("status", status.Status).Msg("prompt still in progress")
	}

	log.Warn().Int("attempts", s.config.Poll.MaxAttempts).Msg("gave up waiting for prompt")
	metrics.ObserveGeneration("timeout", time.Since(start))
	return "", fmt.Errorf("%w: prompt %s not ready after %d checks", domain.ErrTimeout, promptID, s.config.Poll.MaxAttempts)
}

func validateTraining(req domain.TrainingRequest) error {
	if len(req.Images) == 0 {
		return domain.Validationf("at least one photo is required")
	}
	if len(req.Images) > domain.MaxTrainingImages {
		return domain.Validationf("at most %d photos are allowed, got %d", domain.MaxTrainingImages, len(req.Images))
	}
	for i, img := range req.Images {
		if len(img.Data) == 0 {
			return domain.Validationf("photo %d is empty", i+1)
		}
	}
	return nil
}

func validateGeneration(req domain.GenerationRequest) error {
	if req.Prompt == "" {
		return domain.Validationf("prompt is required")
	}
	if req.TuneID == "" {
		return domain.Validationf("tune_id is required")
	}
	if req.Width < 0 || req.Width > maxDimension || req.Height < 0 || req.Height > maxDimension {
		return domain.Validationf("w and h must be between 1 and %d", maxDimension)
	}
	return nil
}

// truncatePrompt safely truncates a string to the specified length while preserving UTF-8 characters
func truncatePrompt(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}

	var size, n int
	for i := 0; i < length && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}

	return s[:n]
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConfiguration):
		return "config"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrGenerationFailed):
		return "failed"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream"
	default:
		return "error"
	}
}
