// Package anthropic summarizes conversation history with Claude for the
// compaction service.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/message"
)

// DefaultInstructions is the system prompt used for summaries.
const DefaultInstructions = "You compress agent conversations. Summarize the transcript so the agent can continue the task: keep decisions, open questions, file paths, identifiers and tool outcomes. Reply with the summary only."

// maxToolResultChars bounds each tool result rendered into the transcript.
const maxToolResultChars = 2000

// Config controls an Anthropic summarizer.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	MaxTokens    int
	Temperature  *float64
	Instructions string
	HTTPClient   *http.Client
}

// Client calls the Anthropic Messages API to summarize history. It
// implements budget.Compactor.
type Client struct {
	client       anthropic.Client
	model        string
	maxTokens    int
	temperature  *float64
	instructions string
}

// New constructs an Anthropic summarizer from config.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return newClient(anthropic.NewClient(opts...), model, cfg.MaxTokens, cfg.Temperature, cfg.Instructions), nil
}

func newClient(client anthropic.Client, model string, maxTokens int, temperature *float64, instructions string) *Client {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultInstructions
	}
	return &Client{
		client:       client,
		model:        model,
		maxTokens:    maxTokens,
		temperature:  temperature,
		instructions: instructions,
	}
}

// Compact summarizes messages. Errors are prefixed with "summarization
// failed" so callers can tell them apart from a plain overflow.
func (c *Client) Compact(ctx context.Context, messages []budget.Budgetable) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System:    []anthropic.TextBlockParam{{Text: c.instructions}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(transcript(messages))),
		},
	}
	if c.temperature != nil {
		req.Temperature = anthropic.Float(*c.temperature)
	}

	msg, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic: summarization failed: %w", err)
	}
	summary := parseResponse(msg)
	if summary == "" {
		return "", errors.New("anthropic: summarization failed: empty summary")
	}
	return summary, nil
}

// transcript renders messages as plain text. Structured messages keep their
// tool calls and results.
func transcript(messages []budget.Budgetable) string {
	var b strings.Builder
	b.WriteString("Summarize this conversation transcript.\n\n<transcript>\n")
	for _, m := range messages {
		if msg, ok := m.(message.AgentMessage); ok {
			writeMessage(&b, msg)
			continue
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", m.BudgetRole(), strings.TrimSpace(m.BudgetContent()))
	}
	b.WriteString("</transcript>")
	return b.String()
}

func writeMessage(b *strings.Builder, msg message.AgentMessage) {
	fmt.Fprintf(b, "[%s]\n", msg.Role)
	if text := strings.TrimSpace(msg.Text()); text != "" {
		b.WriteString(text)
		b.WriteByte('\n')
	}
	for _, call := range msg.Calls() {
		fmt.Fprintf(b, "tool call %s(%s)\n", call.Name, strings.TrimSpace(string(call.Input)))
	}
	for _, result := range msg.ToolResults {
		content, isError := toolResultContent(result)
		if len(content) > maxToolResultChars {
			content = strings.ToValidUTF8(content[:maxToolResultChars], "") + "..."
		}
		label := "tool result"
		if isError {
			label = "tool error"
		}
		fmt.Fprintf(b, "%s %s: %s\n", label, result.Name, content)
	}
	b.WriteByte('\n')
}

func parseResponse(msg *anthropic.Message) string {
	var reply strings.Builder
	for _, block := range msg.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply.WriteString(variant.Text)
		}
	}
	return strings.TrimSpace(reply.String())
}

func toolResultContent(result agentic.ToolResult) (string, bool) {
	if result.Error != nil {
		return result.Error.Message, true
	}
	if len(result.Output) == 0 {
		return "null", false
	}
	return string(result.Output), false
}
