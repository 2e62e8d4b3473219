// Package admin holds the moderation layer: an inline chat filter for the
// ubiquitous follow-bot spam and a periodic monitor that bans known online
// bots and hate-follow clusters.
package admin

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/onnwee/chat-tender/chat"
)

var famousURLPattern = regexp.MustCompile(`(https?:\/\/(www\.)?)+[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&//=,]*)`)

// FamousBotFilter returns an admin callback that bans accounts posting the
// "Wanna become famous?" spam with a link, and suppresses the message so no
// downstream subscriber sees it.
func FamousBotFilter() chat.AdminCallback {
	return func(actions chat.Actions, msg chat.Message) bool {
		if !strings.Contains(strings.ToLower(msg.Text), "wanna become famous") {
			return true
		}
		if !famousURLPattern.MatchString(msg.Text) {
			return true
		}
		slog.Info("banning famous-bot spammer", "channel", msg.Channel, "user", msg.Username)
		if err := actions.Ban(context.Background(), msg.Channel, msg.Username, "[Bot] Wanna become famous"); err != nil {
			slog.Error("famous-bot ban failed", "channel", msg.Channel, "user", msg.Username, "error", err)
		}
		return false
	}
}
