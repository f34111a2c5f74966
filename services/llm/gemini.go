// Package llmsvc provides the language models behind content generation & evaluation.
package llmsvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/trezcool/darasa/core/generate"
)

// ErrNoAPIKey is returned when no LLM API key is configured.
var ErrNoAPIKey = errors.New("llm: API key is required")

// Gemini generates text with Google's Gemini models.
type Gemini struct {
	client *genai.Client
	model  string
}

var _ generate.Model = (*Gemini)(nil)

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return g.model }

func (g *Gemini) Generate(ctx context.Context, req generate.Request) (string, error) {
	conf := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.System != "" {
		conf.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		conf.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, conf)
	if err != nil {
		return "", errors.Wrapf(err, "gemini %s", req.Task)
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", errors.Errorf("gemini %s: empty response", req.Task)
	}
	return out, nil
}
