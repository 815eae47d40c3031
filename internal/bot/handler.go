package bot

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EchoPrefix is prepended to the user's text in echo mode
const EchoPrefix = "Echoed:"

// DecodeUpdate parses a webhook body into a Telegram update
func DecodeUpdate(body []byte) (*tgbotapi.Update, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	return &update, nil
}

// HandleUpdate processes one update. Updates without message text are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	if message == nil || message.Text == "" {
		b.logger.Debug().
			Int("update_id", update.UpdateID).
			Msg("Ignoring update without message text")
		return nil
	}

	b.logger.Info().
		Int("update_id", update.UpdateID).
		Int64("chat_id", message.Chat.ID).
		Int("length", len(message.Text)).
		Msg("New message")

	if message.IsCommand() {
		return b.handleCommand(ctx, message)
	}

	return b.handleMessage(ctx, message)
}

// handleCommand processes bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) error {
	command := message.Command()

	b.logger.Info().
		Str("command", command).
		Int64("chat_id", message.Chat.ID).
		Msg("Received command")

	switch command {
	case "help":
		return b.handleHelpCommand(message)
	default:
		return b.handleMessage(ctx, message)
	}
}

// handleHelpCommand handles /help
func (b *Bot) handleHelpCommand(message *tgbotapi.Message) error {
	helpMsg := fmt.Sprintf(
		"Hi, I am %s, a friendly chatbot based in %s.\n\n"+
			"Send me any message and I will answer it.\n\n"+
			"Commands:\n"+
			"/help - Show this message",
		b.runtime.BotName,
		b.runtime.BotLocation,
	)

	return b.sendMessage(message, helpMsg)
}

// handleMessage replies with the echoed text or the model answer. A failed
// answer is returned without replying to the user.
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if b.runtime.EchoEnabled {
		return b.sendMessage(message, EchoPrefix+message.Text)
	}

	b.sendTypingAction(message.Chat.ID)

	resp, err := b.answerer.Answer(ctx, message.Text)
	if err != nil {
		return fmt.Errorf("failed to answer message: %w", err)
	}

	return b.sendMessage(message, resp.Text)
}
