package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/retrypolicy"
)

const providerName = "gemini"

type Config struct {
	Endpoint    string
	Model       string
	APIKeys     []string
	Temperature float64
	HTTPClient  *http.Client
}

// GeminiService calls generateContent, rotating through the configured keys
// in order on every call.
type GeminiService struct {
	endpoint    string
	model       string
	keys        []string
	temperature float64
	client      *http.Client
}

func NewGeminiService(cfg Config) *GeminiService {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &GeminiService{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		keys:        append([]string(nil), cfg.APIKeys...),
		temperature: cfg.Temperature,
		client:      client,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate sends prompt and returns the first candidate's text.
func (g *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	if len(g.keys) == 0 {
		return "", &apperr.ConfigError{Reason: "no Gemini API keys configured"}
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      g.temperature,
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return "", fmt.Errorf("unable to encode Gemini request: %w", err)
	}

	policy := retrypolicy.Policy{
		MaxAttempts: uint(len(g.keys)),
		Retryable:   func(err error) bool { return rotatable(ctx, err) },
	}
	text, err := retrypolicy.Do(ctx, policy, func(ctx context.Context, attempt uint) (string, error) {
		text, err := g.invoke(ctx, g.keys[attempt], body)
		if err != nil && rotatable(ctx, err) {
			log.Printf("[Gemini] key #%d failed, rotating: %v", attempt+1, err)
		}
		return text, err
	})
	if err == nil {
		return text, nil
	}
	if rotatable(ctx, err) {
		return "", &apperr.ProviderExhaustedError{Provider: providerName, Attempts: len(g.keys), Last: err}
	}
	return "", err
}

func (g *GeminiService) invoke(ctx context.Context, key string, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent?%s", g.endpoint, g.model, url.Values{"key": {key}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("unable to build Gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &apperr.ProviderError{Provider: providerName, Op: "generateContent", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperr.ProviderError{Provider: providerName, Op: "generateContent", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &apperr.ProviderError{
			Provider:   providerName,
			Op:         "generateContent",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 500),
		}
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &apperr.ProviderError{Provider: providerName, Op: "generateContent", StatusCode: resp.StatusCode, Malformed: true, Err: err}
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", &apperr.ProviderError{Provider: providerName, Op: "generateContent", StatusCode: resp.StatusCode, Malformed: true}
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

// rotatable reports whether the next key should be tried: transport failures,
// 401, 403, 429, 5xx and malformed envelopes. A cancelled context never rotates.
func rotatable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Malformed || pe.StatusCode == 0 {
		return true
	}
	switch pe.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return pe.StatusCode >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
