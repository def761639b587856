package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-backend/internal/logger"
)

// DefaultAIScore is the deterministic fallback applied whenever the review
// provider is unavailable or returns garbage, so mission flow never stalls
// in submitted.
const DefaultAIScore = 75

type ReviewArtifact struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type AIReviewInput struct {
	MissionID       uuid.UUID        `json:"mission_id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	SkillTags       []string         `json:"skill_tags"`
	SubmissionNotes string           `json:"submission_notes"`
	Artifacts       []ReviewArtifact `json:"artifacts"`
}

type Competency struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

type AIReviewOutput struct {
	Score                int          `json:"score"`
	Strengths            []string     `json:"strengths"`
	Gaps                 []string     `json:"gaps"`
	Suggestions          []string     `json:"suggestions"`
	CompetenciesDetected []Competency `json:"competencies_detected"`
}

// DefaultAIReview is the neutral substitute for a failed review.
func DefaultAIReview() *AIReviewOutput {
	return &AIReviewOutput{
		Score:     DefaultAIScore,
		Strengths: []string{"Submission received"},
	}
}

type AIReviewer interface {
	Review(ctx context.Context, input AIReviewInput) (*AIReviewOutput, error)
}

type fallbackAIReviewer struct{}

// NewFallbackAIReviewer always yields the neutral default output. It is the
// injected reviewer when no provider is configured.
func NewFallbackAIReviewer() AIReviewer { return fallbackAIReviewer{} }

func (fallbackAIReviewer) Review(ctx context.Context, input AIReviewInput) (*AIReviewOutput, error) {
	return DefaultAIReview(), nil
}

type aiReviewer struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewAIReviewer(log *logger.Logger) (AIReviewer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}

	timeoutSec := 120
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxRetries := 2
	if v := os.Getenv("OPENAI_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed >= 0 {
			maxRetries = parsed
		}
	}

	return &aiReviewer{
		log:        log.With("service", "AIReviewer"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

const reviewSystemPrompt = `You are a mission reviewer for a hands-on cyber-skills platform.
Score the learner's submission 0-100 against the mission description and
return strict JSON with keys: score, strengths, gaps, suggestions,
competencies_detected (list of {name, level}).`

type reviewHTTPError struct {
	StatusCode int
	Body       string
}

func (e *reviewHTTPError) Error() string {
	return fmt.Sprintf("ai review http %d: %s", e.StatusCode, e.Body)
}

func isRetryableReviewErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *reviewHTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 408 || httpErr.StatusCode == 429 {
			return true
		}
		return httpErr.StatusCode >= 500 && httpErr.StatusCode <= 599
	}
	return false
}

func (r *aiReviewer) Review(ctx context.Context, input AIReviewInput) (*AIReviewOutput, error) {
	userPayload, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"model": r.model,
		"messages": []map[string]string{
			{"role": "system", "content": reviewSystemPrompt},
			{"role": "user", "content": string(userPayload)},
		},
		"response_format": map[string]string{"type": "json_object"},
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		out, err := r.doOnce(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryableReviewErr(err) || attempt == r.maxRetries {
			break
		}
		r.log.Warn("AI review retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (r *aiReviewer) doOnce(ctx context.Context, body map[string]any) (*AIReviewOutput, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &reviewHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("ai review decode error: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, fmt.Errorf("ai review returned no choices")
	}

	var out AIReviewOutput
	if err := json.Unmarshal([]byte(envelope.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("ai review malformed content: %w", err)
	}
	if out.Score < 0 || out.Score > 100 {
		return nil, fmt.Errorf("ai review score %d out of range", out.Score)
	}
	return &out, nil
}
