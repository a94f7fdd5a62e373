package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"mediavault/internal/domain/model"
	"mediavault/internal/domain/ports/adapter"
	"mediavault/internal/infra/metrics"
)

var _ adapter.MetadataGenerator = (*GeminiMetadataGenerator)(nil)

// GeminiMetadataGenerator asks Gemini for a short summary and keyword list
// based on the media's extracted metadata. Callers treat every failure here
// as best-effort.
type GeminiMetadataGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiMetadataGenerator(ctx context.Context, apiKey, baseURL, model string) (*GeminiMetadataGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiMetadataGenerator{client: c, model: model}, nil
}

type metadataReply struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

func (g *GeminiMetadataGenerator) GenerateMetadata(ctx context.Context, meta model.NormalizedMetadata, filename string) (*adapter.GeneratedMetadata, error) {
	prompt := buildMetadataPrompt(meta, filename)

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens:  512,
		ResponseMIMEType: "application/json",
	})
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveAICall("metadata", latency, false)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	metrics.ObserveAICall("metadata", latency, true)

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		return nil, errors.New("gemini: empty response")
	}

	var reply metadataReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &reply); err != nil {
		// model ignored the JSON instruction; salvage the text as summary
		reply = metadataReply{Summary: strings.TrimSpace(text)}
	}
	return &adapter.GeneratedMetadata{
		Summary:     reply.Summary,
		Keywords:    reply.Keywords,
		GeneratedAt: time.Now(),
	}, nil
}

func buildMetadataPrompt(meta model.NormalizedMetadata, filename string) string {
	var b strings.Builder
	b.WriteString("Produce JSON {\"summary\": string, \"keywords\": [string]} describing this media item. ")
	b.WriteString("Summary under 60 words, at most 8 keywords.\n")
	fmt.Fprintf(&b, "Title: %s\n", coalesce(meta.Title, filename))
	if meta.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", meta.Author)
	}
	if meta.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration: %.0f seconds\n", meta.DurationSeconds)
	}
	return b.String()
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
