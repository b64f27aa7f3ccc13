package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
)

const (
	DefaultModel    = "gemini-1.5-flash"
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/"
)

type GeminiConfig struct {
	APIKey string
	Model  string
	// Endpoint overrides the service base URL. Empty uses the public API.
	Endpoint        string
	Temperature     float64
	TopP            float64
	TopK            int64
	MaxOutputTokens int64
	// HTTPClient replaces the default client. The API key is still sent
	// when set, but is not required.
	HTTPClient *http.Client
}

// Gemini is a Generator backed by the Generative Language REST API.
type Gemini struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	gen        generationConfig
}

// generateRequest is the models/{model}:generateContent request body.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	// Zero temperature is a real setting, so it is always sent.
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int64   `json:"topK,omitempty"`
	MaxOutputTokens int64   `json:"maxOutputTokens,omitempty"`
}

// generateResponse is the subset of GenerateContentResponse we read.
type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		if cfg.APIKey == "" {
			return nil, errors.New("gemini API key not configured")
		}
		httpClient = &http.Client{}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid gemini endpoint %q: %w", endpoint, err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	return &Gemini{
		httpClient: httpClient,
		url:        endpoint + model + ":generateContent",
		apiKey:     cfg.APIKey,
		model:      model,
		gen: generationConfig{
			Temperature:     cfg.Temperature,
			TopP:            cfg.TopP,
			TopK:            cfg.TopK,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}, nil
}

func (g *Gemini) Model() string { return g.model }

// Generate sends the prompt and inline audio and returns the concatenated
// text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string, audio []byte, mimeType string) (string, error) {
	body := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &blob{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
		GenerationConfig: g.gen,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-goog-api-key", g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("generate content: HTTP %d: %w", apiErr.Code, err)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrFormat, err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		reason := "unknown"
		if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			reason = result.PromptFeedback.BlockReason
		}
		return "", fmt.Errorf("%w: no candidates returned (block reason: %s)", ErrFormat, reason)
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty response (finish reason: %s)", ErrFormat, result.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
