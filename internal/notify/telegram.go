package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

// DefaultTelegramBaseURL is the Telegram bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// DefaultRequestTimeout bounds a single Telegram API call.
const DefaultRequestTimeout = 10 * time.Second

// Opts holds configuration options for the Telegram notifier.
type Opts struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
}

// Option defines a configuration option for the Telegram notifier.
type Option func(*Opts)

// WithBotToken sets the Telegram bot token.
func WithBotToken(token string) Option {
	return func(o *Opts) {
		o.BotToken = token
	}
}

// WithChatID sets the Telegram chat that receives doctor alerts.
func WithChatID(chatID string) Option {
	return func(o *Opts) {
		o.ChatID = chatID
	}
}

// WithBaseURL overrides the Telegram API base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *Opts) {
		o.BaseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client used for Telegram calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Opts) {
		o.Client = client
	}
}

// TelegramNotifier posts a consultation summary to a Telegram chat when an
// intake completes.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier. Bot token and chat id are
// required.
func NewTelegramNotifier(opts ...Option) (*TelegramNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewTelegramNotifier invoked", "token_set", cfg.BotToken != "", "chatID_set", cfg.ChatID != "")

	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
	}, nil
}

// NotifyComplete formats the intake summary and sends it to the configured
// Telegram chat.
func (n *TelegramNotifier) NotifyComplete(ctx context.Context, snapshot models.IntakeSnapshot) error {
	slog.Debug("TelegramNotifier NotifyComplete", "conversationID", snapshot.ConversationID)

	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    FormatSummary(snapshot),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("Telegram request failed", "error", err, "conversationID", snapshot.ConversationID)
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("Telegram returned non-OK status", "status", resp.StatusCode, "conversationID", snapshot.ConversationID)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	slog.Debug("Telegram alert delivered", "conversationID", snapshot.ConversationID)
	return nil
}

// FormatSummary renders the doctor-facing consultation summary.
func FormatSummary(snapshot models.IntakeSnapshot) string {
	var b strings.Builder
	b.WriteString("New patient consultation request\n\n")
	if snapshot.Name != "" {
		fmt.Fprintf(&b, "Patient: %s\n", snapshot.Name)
	} else {
		b.WriteString("Patient: (name not provided)\n")
	}
	if snapshot.Age > 0 {
		fmt.Fprintf(&b, "Age: %d\n", snapshot.Age)
	}
	if snapshot.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", snapshot.Gender)
	}
	if snapshot.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", snapshot.Email)
	}
	symptom := snapshot.Symptom
	if snapshot.SymptomUnmatched {
		symptom += " (unrecognized, generic follow-ups used)"
	}
	fmt.Fprintf(&b, "Chief complaint: %s\n", symptom)

	if len(snapshot.Answers) > 0 {
		b.WriteString("\nFollow-up answers:\n")
		for i, qa := range snapshot.Answers {
			answer := qa.Answer
			if answer == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, qa.Question, answer)
		}
	}
	return b.String()
}
