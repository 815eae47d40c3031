package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vecihi-bot/internal/bot"
	"github.com/vecihi-bot/internal/config"
	"github.com/vecihi-bot/internal/dispatch"
	"github.com/vecihi-bot/internal/models"
	"github.com/vecihi-bot/internal/scheduler"
	"github.com/vecihi-bot/internal/server"
)

// drainTimeout bounds the wait for abandoned chat updates at shutdown
const drainTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen for events over HTTP in the configured mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	logger := a.logger

	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var handler http.Handler
	var webhook *bot.Webhook

	switch a.settings.Mode {
	case models.ModeTelegram:
		logger.Info().Msg("Initializing Telegram bot...")
		api, err := bot.NewAPI(a.runtime.BotToken, a.runtime.LogLevel == "debug", logger)
		if err != nil {
			return err
		}
		telegramBot := bot.New(api, a.pipeline, a.runtime, logger)
		webhook = bot.NewWebhook(telegramBot, a.settings.HandlerTimeout(), logger)
		handler = webhook
	default:
		handler = dispatch.NewDirect(a.pipeline, logger)
	}

	sched, err := scheduler.NewScheduler(a.llmClient, a.settings.Health.Schedule, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	srv := server.New(a.settings.Server.Addr, a.settings.Server.Path, handler, sched.Healthy, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return sched.Start(gctx)
	})

	logger.Info().Msg("Bot is running. Press Ctrl+C to stop.")

	err = g.Wait()
	if err != nil {
		logger.Error().Err(err).Msg("Bot stopped with error")
	}

	// Give abandoned chat updates some time to finish
	if webhook != nil {
		done := make(chan struct{})
		go func() {
			webhook.Wait()
			close(done)
		}()

		select {
		case <-time.After(drainTimeout):
			logger.Warn().Msg("Shutdown timeout exceeded, some updates may be lost")
		case <-done:
			logger.Info().Msg("Graceful shutdown completed")
		}
	}

	logger.Info().Msg("Bot stopped")
	return err
}

func invokeCmd() *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "invoke [message]",
		Short: "Answer one direct mode event and print the response",
		Long:  "Runs a single event through the direct mode dispatcher. The event is read from --event or built from the message argument.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := eventBody(eventPath, args)
			if err != nil {
				return err
			}

			a, err := bootstrap()
			if err != nil {
				return err
			}

			resp := dispatch.NewDirect(a.pipeline, a.logger).Handle(cmd.Context(), body)
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n%s\n", resp.StatusCode, resp.Body)
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventPath, "event", "e", "", "JSON event file")

	return cmd
}

// eventBody reads the event file or wraps the message argument
func eventBody(path string, args []string) ([]byte, error) {
	switch {
	case path != "" && len(args) > 0:
		return nil, errors.New("use either --event or a message argument, not both")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read event file: %w", err)
		}
		return data, nil
	case len(args) > 0:
		return json.Marshal(map[string]string{"message": args[0]})
	default:
		return []byte("{}"), nil
	}
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <url>",
		Short: "Register the webhook URL with Telegram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := telegramAPI()
			if err != nil {
				return err
			}
			if err := bot.SetWebhook(api, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the registered webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := telegramAPI()
			if err != nil {
				return err
			}
			if err := bot.DeleteWebhook(api); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted")
			return nil
		},
	})

	return cmd
}

// telegramAPI authorizes with TELEGRAM_TOKEN. The config file is not needed.
func telegramAPI() (*tgbotapi.BotAPI, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	runtime := config.LoadRuntime(time.Now())
	if runtime.BotToken == "" {
		return nil, fmt.Errorf("%w: TELEGRAM_TOKEN is not set", models.ErrConfiguration)
	}

	logger := setupLogger(runtime.LogLevel, runtime.Environment)
	return bot.NewAPI(runtime.BotToken, runtime.LogLevel == "debug", logger)
}
