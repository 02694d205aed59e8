package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration for the OpenAI-backed extractor.
const (
	// DefaultModel is the chat model used for field extraction.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTimeout bounds a single extraction call.
	DefaultTimeout = 10 * time.Second
	// defaultMaxTokens caps the extraction response; the expected output is
	// a small JSON object.
	defaultMaxTokens = 150
)

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute a mock for the real OpenAI client.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the OpenAI SDK client to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s *openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the OpenAI extractor.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the OpenAI extractor.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model used for extraction.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTimeout bounds each extraction call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// OpenAIExtractor extracts intake fields with a chat completion call.
type OpenAIExtractor struct {
	chat    chatService
	model   string
	timeout time.Duration
}

// NewOpenAIExtractor creates an extractor backed by the OpenAI API.
func NewOpenAIExtractor(opts ...Option) (*OpenAIExtractor, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	slog.Debug("NewOpenAIExtractor: creating extractor", "model", cfg.Model, "timeout", cfg.Timeout)
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIExtractor{
		chat:    &openaiChatService{client: client},
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

const extractionSystemPrompt = `You extract patient intake fields from a single chat message.
Return ONLY a JSON object. Include a key ONLY when the message clearly states its value.
Never guess, never invent placeholders, never explain.
Keys and formats:
- "name": the patient's name as written
- "age": integer years
- "gender": "Male" or "Female"
- "email": the email address
- "symptom": the main symptom complaint, in the patient's words
If nothing can be extracted, return {}.`

// Extract implements Extractor with a single bounded chat completion call.
func (e *OpenAIExtractor) Extract(ctx context.Context, text string, missing []models.Field) (models.FieldMap, error) {
	if len(missing) == 0 {
		return models.FieldMap{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	wanted := make([]string, len(missing))
	for i, f := range missing {
		wanted[i] = string(f)
	}
	userPrompt := fmt.Sprintf("Missing fields: %s\nPatient message: %q", strings.Join(wanted, ", "), text)

	params := openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractionSystemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(defaultMaxTokens),
	}

	resp, err := e.chat.Create(ctx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", ErrExtractionTimeout, err)
		}
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	fields, err := parseExtractionResponse(resp.Choices[0].Message.Content, missing)
	if err != nil {
		return nil, err
	}
	slog.Debug("OpenAIExtractor.Extract: extracted fields", "requested", len(missing), "extracted", len(fields))
	return fields, nil
}

// parseExtractionResponse decodes the model's JSON object, tolerating code
// fences, and keeps only the requested fields.
func parseExtractionResponse(content string, missing []models.Field) (models.FieldMap, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	allowed := make(map[models.Field]bool, len(missing))
	for _, f := range missing {
		allowed[f] = true
	}

	fields := models.FieldMap{}
	for key, value := range raw {
		field := models.Field(key)
		if !allowed[field] {
			continue
		}
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				fields[field] = strings.TrimSpace(v)
			}
		case float64:
			fields[field] = fmt.Sprintf("%d", int(v))
		}
	}
	return fields, nil
}
