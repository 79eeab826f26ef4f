// Package notifier announces badges and pending completions on Discord.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/ecolearn/ecolearn-api/internal/points"
	"go.uber.org/zap"
)

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordNotifier struct {
	sender    messageSender
	channelID string
	log       *zap.Logger
}

func NewDiscordNotifier(session *discordgo.Session, channelID string, log *zap.Logger) *DiscordNotifier {
	n := &DiscordNotifier{channelID: channelID, log: log}
	if session != nil {
		n.sender = session
	}
	return n
}

func (n *DiscordNotifier) send(message string) error {
	if n.sender == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}
	if _, err := n.sender.ChannelMessageSend(n.channelID, message); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// PointsAwarded announces newly earned badges. Awards without badges stay quiet.
func (n *DiscordNotifier) PointsAwarded(_ context.Context, ev points.AwardEvent) {
	if len(ev.NewBadges) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏅 **Badge Unlocked**\n**Student:** %s", ev.Username)
	if ev.School != "" {
		fmt.Fprintf(&b, " (%s)", ev.School)
	}
	for _, badge := range ev.NewBadges {
		fmt.Fprintf(&b, "\n%s **%s**: %s", badge.Icon, badge.Name, badge.Description)
	}
	fmt.Fprintf(&b, "\n**Total:** %d points, level %d", ev.TotalPoints, ev.Level)

	if err := n.send(b.String()); err != nil {
		n.log.Warn("Failed to announce badges", zap.Uint("user_id", ev.UserID), zap.Error(err))
	}
}

func (n *DiscordNotifier) CompletionSubmitted(_ context.Context, ev points.SubmissionEvent) {
	message := fmt.Sprintf("📝 **Completion Awaiting Verification**\n**Student:** %s\n**Task:** %s\n**Completion:** #%d",
		ev.Username,
		ev.TaskTitle,
		ev.CompletionID,
	)
	if ev.School != "" {
		message += fmt.Sprintf("\n**School:** %s", ev.School)
	}

	if err := n.send(message); err != nil {
		n.log.Warn("Failed to announce submission", zap.Uint("completion_id", ev.CompletionID), zap.Error(err))
	}
}
