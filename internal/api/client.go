// Package api provides direct Anthropic API integration for qforge workers.
package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultMaxTokens caps a single completion when the request sets no limit.
const DefaultMaxTokens = 4096

// ErrMissingAPIKey is returned when neither the config nor the environment carries a key.
var ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY environment variable is not set")

// Client wraps the Anthropic SDK client with token tracking.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	bedrock bool
	tracker *TokenTracker
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the default Claude model for requests that name none.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
}

// NewClient creates a new Anthropic API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	return &Client{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		bedrock: cfg.UseAWSBedrock,
		tracker: NewTokenTrackerForModel(model),
	}, nil
}

// bedrockModels maps Anthropic model names to Bedrock cross-region inference profiles.
var bedrockModels = map[anthropic.Model]string{
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

// translateModelForBedrock converts standard model names to Bedrock inference profile format.
// Unknown names pass through unchanged.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	if m, ok := bedrockModels[model]; ok {
		return anthropic.Model(m)
	}
	return model
}

// Model returns the configured default model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}

// TranslateModel translates a model name for Bedrock if this client uses Bedrock.
func (c *Client) TranslateModel(model anthropic.Model) anthropic.Model {
	if c.bedrock {
		return translateModelForBedrock(model)
	}
	return model
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
}

// Completion is the text answer and its token usage.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Complete sends a single user message and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := c.model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	model = c.TranslateModel(model)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages.new: %w", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}

	return &Completion{
		Text:         b.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
	price     modelPrice
}

// modelPrice is list pricing in USD per million tokens.
type modelPrice struct {
	input, output float64
}

var sonnetPrice = modelPrice{input: 3.0, output: 15.0}

// modelPrices is matched by substring against the model name.
var modelPrices = []struct {
	family string
	price  modelPrice
}{
	{"opus", modelPrice{input: 15.0, output: 75.0}},
	{"haiku-4", modelPrice{input: 1.0, output: 5.0}},
	{"haiku", modelPrice{input: 0.8, output: 4.0}},
	{"sonnet", sonnetPrice},
}

func priceFor(model anthropic.Model) modelPrice {
	name := strings.ToLower(string(model))
	for _, p := range modelPrices {
		if strings.Contains(name, p.family) {
			return p.price
		}
	}
	return sonnetPrice
}

// NewTokenTracker creates a new token tracker priced like Sonnet.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{price: sonnetPrice}
}

// NewTokenTrackerForModel creates a token tracker priced for model.
// Unknown models are priced like Sonnet.
func NewTokenTrackerForModel(model anthropic.Model) *TokenTracker {
	return &TokenTracker{price: priceFor(model)}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears all tracked token usage.
func (t *TokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok = 0
	t.outputTok = 0
	t.calls = 0
}

// Cost estimates the cost in USD at the tracker's list pricing.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.inputTok)/1_000_000*t.price.input + float64(t.outputTok)/1_000_000*t.price.output
}
