package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Aniketchurihar/CardioGenie/internal/api"
	"github.com/Aniketchurihar/CardioGenie/internal/catalog"
	"github.com/Aniketchurihar/CardioGenie/internal/engine"
	"github.com/Aniketchurihar/CardioGenie/internal/extract"
	"github.com/Aniketchurihar/CardioGenie/internal/notify"
	"github.com/Aniketchurihar/CardioGenie/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for CardioGenie state data
	DefaultStateDir = "/var/lib/cardiogenie"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cardiogenie.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("CardioGenie failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CardioGenie exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL      string
	StateDir         string
	OpenAIKey        string
	APIAddr          string
	TelegramBotToken string
	TelegramChatID   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	datasetPath    *string
	openaiKey      *string
	apiAddr        *string
	telegramToken  *string
	telegramChatID *string
	minFollowUps   *int
	retryCap       *int
	maxPerCategory *int
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("CARDIOGENIE_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CARDIOGENIE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CARDIOGENIE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramBotToken != "",
		"TELEGRAM_CHAT_ID_SET", config.TelegramChatID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for CardioGenie data (overrides $CARDIOGENIE_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)"),
		datasetPath:    flag.String("symptom-dataset", "", "path to a symptom dataset JSON file (defaults to the embedded dataset)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		telegramToken:  flag.String("telegram-bot-token", config.TelegramBotToken, "Telegram bot token for doctor alerts (overrides $TELEGRAM_BOT_TOKEN)"),
		telegramChatID: flag.String("telegram-chat-id", config.TelegramChatID, "Telegram chat id for doctor alerts (overrides $TELEGRAM_CHAT_ID)"),
		minFollowUps:   flag.Int("min-follow-ups", engine.DefaultMinFollowUps, "follow-up answers required to complete an intake"),
		retryCap:       flag.Int("demographic-retry-cap", engine.DefaultDemographicRetryCap, "nameless demographic turns tolerated before proceeding"),
		maxPerCategory: flag.Int("max-questions-per-category", engine.DefaultMaxQuestionsPerCategory, "questions asked per category for one symptom"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"datasetPath", *flags.datasetPath,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"minFollowUps", *flags.minFollowUps,
		"retryCap", *flags.retryCap,
		"maxPerCategory", *flags.maxPerCategory)

	// Follow the state directory when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// buildStore selects the store backend by DSN type.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildExtractor uses the OpenAI extractor when a key is configured and
// degrades to rule-based extraction otherwise.
func buildExtractor(flags Flags, cat *catalog.Catalog) (extract.Extractor, error) {
	if *flags.openaiKey != "" {
		return extract.NewOpenAIExtractor(extract.WithAPIKey(*flags.openaiKey))
	}
	slog.Warn("No OpenAI API key configured, using rule-based extraction")
	return extract.NewRuleBased(cat.Terms()), nil
}

// buildNotifier wires the Telegram doctor alert when configured, otherwise
// falls back to the log notifier.
func buildNotifier(flags Flags) (notify.Notifier, error) {
	if *flags.telegramToken != "" && *flags.telegramChatID != "" {
		return notify.NewTelegramNotifier(
			notify.WithBotToken(*flags.telegramToken),
			notify.WithChatID(*flags.telegramChatID),
		)
	}
	slog.Debug("Telegram not configured, using log notifier")
	return notify.NewLogNotifier(), nil
}

func run(flags Flags) error {
	var catalogOpts []catalog.Option
	if *flags.datasetPath != "" {
		catalogOpts = append(catalogOpts, catalog.WithDatasetPath(*flags.datasetPath))
	}
	cat, err := catalog.New(catalogOpts...)
	if err != nil {
		return err
	}

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	extractor, err := buildExtractor(flags, cat)
	if err != nil {
		return err
	}

	notifier, err := buildNotifier(flags)
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(st, extractor, cat,
		engine.WithNotifier(notifier),
		engine.WithMinFollowUps(*flags.minFollowUps),
		engine.WithDemographicRetryCap(*flags.retryCap),
		engine.WithMaxQuestionsPerCategory(*flags.maxPerCategory),
	)
	if err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server, err := api.NewServer(eng, st, cat, apiOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping CardioGenie", "symptoms", cat.Len(), "api_addr", *flags.apiAddr)
	return server.Run(ctx)
}
