package main

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vecihi-bot/internal/config"
	"github.com/vecihi-bot/internal/contextfetch"
	"github.com/vecihi-bot/internal/llm"
	"github.com/vecihi-bot/internal/models"
	"github.com/vecihi-bot/internal/pipeline"
	"github.com/vecihi-bot/internal/prompt"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "vecihi",
		Short:         "Vecihi: relay chat messages to a local language model",
		Long:          "Vecihi answers messages with a local inference runtime, either in the HTTP response body or as Telegram replies.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "configuration file")

	root.AddCommand(serveCmd())
	root.AddCommand(invokeCmd())
	root.AddCommand(webhookCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// app holds the components shared by every command
type app struct {
	settings  *models.Settings
	runtime   *models.RuntimeContext
	logger    zerolog.Logger
	llmClient *llm.Client
	pipeline  *pipeline.Pipeline
}

// bootstrap loads configuration and builds the pipeline. Any failure here
// aborts startup before a handler is ready.
func bootstrap() (*app, error) {
	// Load configuration
	settings, runtime, err := config.LoadAll(configPath, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(runtime.LogLevel, runtime.Environment)
	logger.Info().
		Str("environment", runtime.Environment).
		Str("mode", string(settings.Mode)).
		Str("bot_name", runtime.BotName).
		Str("location", runtime.BotLocation).
		Str("model", settings.ModelName()).
		Str("backend", string(settings.Model.Backend)).
		Bool("context_url", runtime.ContextFileURL != "").
		Bool("echo_enabled", runtime.EchoEnabled).
		Msg("Starting Vecihi")

	if missing := missingPlaceholders(settings.PromptTemplate); len(missing) > 0 {
		logger.Warn().Strs("placeholders", missing).Msg("Prompt template ignores the incoming message")
	}

	// Initialize LLM client
	logger.Info().Msg("Initializing inference client...")
	llmClient, err := llm.NewClient(settings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	fetcher := contextfetch.New(settings.ContextFetch.Timeout(), settings.ContextFetch.MaxBytes, logger)

	return &app{
		settings:  settings,
		runtime:   runtime,
		logger:    logger,
		llmClient: llmClient,
		pipeline:  pipeline.New(settings.PromptTemplate, runtime, fetcher, llmClient, logger),
	}, nil
}

// missingPlaceholders lists the placeholders carrying the user's message that
// the template never references
func missingPlaceholders(template string) []string {
	used := prompt.Placeholders(template)
	var missing []string
	for _, name := range []string{"question"} {
		if !slices.Contains(used, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// setupLogger configures and returns a zerolog logger
func setupLogger(level, environment string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	var logger zerolog.Logger
	if environment == "development" {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger
}
