package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const (
	pollTimeout  = 30 * time.Second
	pollCooldown = 5 * time.Second
)

// Answerer produces the reply for one inbound question.
type Answerer interface {
	Answer(ctx context.Context, userID, question string) string
}

// Bot runs the long-polling loop: fetch updates, filter, answer, reply.
type Bot struct {
	api      API
	answerer Answerer
	groupID  int64
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewBot creates a bot. groupID restricts which group chat the bot answers
// in; private chats are always answered.
func NewBot(api API, answerer Answerer, groupID int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{api: api, answerer: answerer, groupID: groupID, logger: logger}
}

// Run polls until ctx is cancelled. Poll failures are logged and retried
// after a cooldown; in-flight answers are drained before returning.
func (b *Bot) Run(ctx context.Context) error {
	defer b.wg.Wait()

	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("polling updates failed", "error", err)
			select {
			case <-time.After(pollCooldown):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if msg := update.Message; b.shouldAnswer(msg) {
				b.wg.Add(1)
				go func(msg *Message) {
					defer b.wg.Done()
					b.handle(ctx, msg)
				}(msg)
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// shouldAnswer filters updates down to human text messages the bot is
// allowed to respond to.
func (b *Bot) shouldAnswer(msg *Message) bool {
	if msg == nil || msg.Text == "" {
		return false
	}
	if msg.From == nil || msg.From.IsBot {
		return false
	}
	if isGroupChat(msg.Chat.Type) && msg.Chat.ID != b.groupID {
		return false
	}
	return true
}

func isGroupChat(chatType string) bool {
	return chatType == "group" || chatType == "supergroup"
}

// handle answers one message and sends the reply, split if oversized.
func (b *Bot) handle(ctx context.Context, msg *Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	reply := b.answerer.Answer(ctx, userID, msg.Text)

	for _, part := range SplitMessage(reply, MaxMessageLen) {
		if err := b.api.SendMessage(ctx, msg.Chat.ID, part); err != nil {
			b.logger.Error("sending reply failed",
				"chat_id", msg.Chat.ID, "user_id", userID, "error", err)
			return
		}
	}
}

// SplitMessage splits text into pieces of at most limit runes, breaking at
// the last whitespace inside the window when one exists.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > 0; i-- {
			if isSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
