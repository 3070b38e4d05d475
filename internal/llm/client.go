// Package llm wraps the Anthropic messages API behind the minimal
// completion surface the pipeline needs.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const defaultMaxTokens = 1024

// Client is a thin completion adapter over the Anthropic SDK.
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

func NewClient(apiKey, model string, logger zerolog.Logger) *Client {
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: defaultMaxTokens,
		logger:    logger.With().Str("component", "llm").Logger(),
	}
}

// Complete sends one system/user prompt pair and returns the concatenated
// text blocks of the response.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("messages request: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("response carried no text content")
	}

	c.logger.Debug().Str("model", c.model).Int("chars", len(text)).Msg("completion received")
	return text, nil
}
