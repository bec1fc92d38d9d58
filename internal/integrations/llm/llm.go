// Package llm asks a hosted language model for a short written rationale of
// a classifier verdict. It never changes the verdict itself.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"vargento/internal/classifier"
	"vargento/internal/config"
	"vargento/internal/httpx"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"
const defaultOpenAIBaseURL = "https://api.openai.com"

const maxRationaleRunes = 600
const maxPromptExamples = 5

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

type RationaleRequest struct {
	Description  string
	Label        string
	DisplayLabel string
	Confidence   float64
	Labels       []string
	Similar      []classifier.SimilarIncident
}

type Client struct {
	provider      string
	model         string
	apiKey        string
	anthropicBase string
	openAIBase    string
	log           *zap.SugaredLogger
}

func New(cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		provider:   cfg.LLMProvider,
		model:      cfg.LLMModel,
		apiKey:     cfg.LLMAPIKey(),
		openAIBase: defaultOpenAIBaseURL,
		log:        logger.Sugar().Named("llm"),
	}
	if c.model == "" {
		if c.provider == "openai" {
			c.model = defaultOpenAIModel
		} else {
			c.model = defaultAnthropicModel
		}
	}
	return c
}

// Rationale returns two sentences explaining why the incident fits the
// predicted decision, grounded on the similar historical incidents.
func (c *Client) Rationale(ctx context.Context, req RationaleRequest) (string, Usage, error) {
	systemPrompt, userPrompt := buildRationalePrompts(req)

	var text string
	var usage Usage
	var err error
	switch c.provider {
	case "openai":
		c.log.Infof("llm rationale provider=openai model=%s label=%s examples=%d", c.model, req.Label, len(req.Similar))
		text, usage, err = c.callOpenAI(ctx, systemPrompt, userPrompt)
	default:
		c.log.Infof("llm rationale provider=anthropic model=%s label=%s examples=%d", c.model, req.Label, len(req.Similar))
		text, usage, err = c.callAnthropic(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return "", usage, err
	}
	text = cleanRationale(text)
	if text == "" {
		return "", usage, fmt.Errorf("empty rationale from %s", c.provider)
	}
	return text, usage, nil
}

func buildRationalePrompts(req RationaleRequest) (string, string) {
	systemPrompt := `You assist football (soccer) video assistant referees.
A text classifier trained on past refereeing decisions has already chosen a decision for the incident.
Explain in at most two short sentences, in Spanish, why the incident description supports that decision.
Refer to the Laws of the Game only in general terms. Do not contradict or change the decision.
Answer with plain text only: no lists, no markdown, no preamble.`
	if len(req.Labels) > 0 {
		systemPrompt += "\n\nPossible decisions: " + strings.Join(req.Labels, ", ") + "."
	}

	decision := req.Label
	if req.DisplayLabel != "" && req.DisplayLabel != req.Label {
		decision = fmt.Sprintf("%s (%s)", req.Label, req.DisplayLabel)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Incident: %q\n", strings.TrimSpace(req.Description))
	fmt.Fprintf(&b, "Decision: %s (confidence %.0f%%)\n", decision, req.Confidence*100)
	if len(req.Similar) > 0 {
		b.WriteString("\nSimilar past incidents:\n")
		for i, s := range req.Similar {
			if i == maxPromptExamples {
				break
			}
			desc := strings.TrimSpace(s.Description)
			if r := []rune(desc); len(r) > 150 {
				desc = string(r[:150]) + "..."
			}
			fmt.Fprintf(&b, "- %q -> %s\n", desc, s.Decision)
		}
	}
	return systemPrompt, b.String()
}

func cleanRationale(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxRationaleRunes {
		text = strings.TrimSpace(string(r[:maxRationaleRunes-3])) + "..."
	}
	return text
}

func (c *Client) callAnthropic(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(c.apiKey),
		option.WithHTTPClient(httpx.Client()),
	}
	if c.anthropicBase != "" {
		opts = append(opts, option.WithBaseURL(c.anthropicBase))
	}
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		c.log.Warnf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			c.log.Infof("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d",
				len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) callOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	bodyBytes, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.openAIBase, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := httpx.Client().Do(req)
	if err != nil {
		c.log.Warnf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}
	if openAIResp.Error != nil {
		c.log.Warnf("llm openai api error: %s", openAIResp.Error.Message)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	c.log.Infof("llm openai response size=%d tokens_in=%d tokens_out=%d", len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}
