package bot

import (
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxChunkLength keeps each outbound message under Telegram's 4096 limit
const MaxChunkLength = 4000

// recoverMiddleware turns a panic in handler into an error
func (b *Bot) recoverMiddleware(handler func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in handler")
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()

	return handler()
}

// sendMessage replies to message, split into chunks when the text is long.
// Chunks already sent stay sent if a later one fails.
func (b *Bot) sendMessage(message *tgbotapi.Message, text string) error {
	chatID := message.Chat.ID

	for i, chunk := range splitMessage(text, MaxChunkLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 {
			msg.ReplyToMessageID = message.MessageID
		}

		if _, err := b.sender.Send(msg); err != nil {
			b.logger.Error().
				Err(err).
				Int64("chat_id", chatID).
				Int("chunk", i).
				Msg("Failed to send message")
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	return nil
}

// sendTypingAction sends typing action to the chat
func (b *Bot) sendTypingAction(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = b.sender.Send(action)
}

// splitMessage splits text into chunks of at most maxLen characters,
// preferring to cut after a newline in the second half of a chunk
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}

		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}

		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
