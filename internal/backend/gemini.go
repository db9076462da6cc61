package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	genai "google.golang.org/genai"
)

// Gemini is a Backend over the official genai client.
type Gemini struct {
	cli   *genai.Client
	model string
}

// NewGemini creates a Gemini backend. The API key may come from cfg or from
// the GEMINI_API_KEY environment variable read by the client itself.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{cli: cli, model: model}, nil
}

// Name identifies the adapter.
func (g *Gemini) Name() string { return "gemini:" + g.model }

// Close is a no-op; the genai client holds no long-lived connections here.
func (g *Gemini) Close() error { return nil }

// Generate produces text for the request.
func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxOutputChars > 0 {
		// Rough chars-to-tokens conversion; the backend bound is soft.
		cfg.MaxOutputTokens = int32(req.MaxOutputChars / 4)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Response{}, fatal(ClassUnknown, errors.New("empty response from model"))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return Response{Content: b.String(), Model: g.model}, nil
}

// classifyGeminiError maps genai errors onto the retry taxonomy.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return transient(ClassRateLimited, err)
		case http.StatusServiceUnavailable:
			return transient(ClassOverloaded, err)
		case http.StatusBadRequest:
			return fatal(ClassBadRequest, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fatal(ClassAuth, err)
		default:
			return fatal(ClassUnknown, err)
		}
	}

	// No structured error available; fall back to status text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "429"):
		return transient(ClassRateLimited, err)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "overloaded"), strings.Contains(msg, "503"):
		return transient(ClassOverloaded, err)
	case strings.Contains(msg, "invalid_argument"), strings.Contains(msg, "400"):
		return fatal(ClassBadRequest, err)
	case strings.Contains(msg, "permission_denied"), strings.Contains(msg, "unauthenticated"), strings.Contains(msg, "api key"):
		return fatal(ClassAuth, err)
	default:
		return fatal(ClassUnknown, err)
	}
}
