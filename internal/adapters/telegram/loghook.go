// Package telegram mirrors service logs into a Telegram channel.
package telegram

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
	tele "gopkg.in/telebot.v3"

	"github.com/campus-events/event-aggregator/pkg/logger/types"
)

const queueSize = 64

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// LogHook returns a log hook that forwards entries at or above level to the
// channel. Entries are sent from a background goroutine; when the queue is
// full new entries are dropped.
//
// Parameters:
//   - bot is used to send the messages
//   - channelID is the channel to send the log to
//   - level is the minimum log level to send
func LogHook(bot *tele.Bot, channelID int64, level zapcore.Level, logger *types.Logger) (types.LogHook, error) {
	chat, err := bot.ChatByID(channelID)
	if err != nil {
		return nil, err
	}
	return newLogHook(bot, chat, level, logger), nil
}

func newLogHook(s sender, chat tele.Recipient, level zapcore.Level, logger *types.Logger) types.LogHook {
	queue := make(chan types.Log, queueSize)
	go func() {
		for entry := range queue {
			if _, err := s.Send(chat, Format(entry)); err != nil {
				logger.Errorf("failed to send log to channel %s: %v", chat.Recipient(), err)
			}
		}
	}()

	return func(entry types.Log) {
		if entry.Level < level || strings.Contains(entry.Message, "failed to send log to channel") {
			return
		}
		select {
		case queue <- entry:
		default:
		}
	}
}

// Format renders a log entry as a channel message.
func Format(entry types.Log) string {
	return fmt.Sprintf("[%s] %s\n%s | %s\n%s",
		entry.Level.CapitalString(),
		entry.Timestamp.Format("2006-01-02 15:04:05"),
		entry.LoggerName,
		entry.Caller,
		entry.Message,
	)
}
