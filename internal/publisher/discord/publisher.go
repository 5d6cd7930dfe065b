// Package discord posts run notifications to a Discord channel.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// maxMessageLen is Discord's per-message content limit.
const maxMessageLen = 2000

// Config controls the Discord notifier.
type Config struct {
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Publisher sends one message per notification. The topic is ignored;
// messages always go to the configured channel.
type Publisher struct {
	sender    messageSender
	channelID string
}

// New builds a Publisher backed by a bot session.
func New(cfg Config) (*Publisher, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord channel id is required")
	}
	session, err := discordgo.New("Bot " + strings.TrimPrefix(cfg.Token, "Bot "))
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Publisher{sender: session, channelID: cfg.ChannelID}, nil
}

// Publish formats payload and posts it to the channel.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := format(payload)
	if err != nil {
		return "", err
	}
	msg, err := p.sender.ChannelMessageSend(p.channelID, content)
	if err != nil {
		return "", fmt.Errorf("send discord message: %w", err)
	}
	return msg.ID, nil
}

func format(payload any) (string, error) {
	if summary, ok := payload.(catalog.RunSummary); ok {
		return formatSummary(summary), nil
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return truncate("```json\n" + string(data) + "\n```"), nil
}

func formatSummary(s catalog.RunSummary) string {
	var b strings.Builder
	status := string(s.Status)
	if status == "" {
		status = "finished"
	}
	fmt.Fprintf(&b, "**Harvest %s** `%s`\n", status, s.RunID)
	fmt.Fprintf(&b, "Duration: %s\n", s.Finished.Sub(s.Started).Round(time.Second))
	fmt.Fprintf(&b, "Discovery: %d categories, %d pages ok, %d pages failed, %d links\n",
		s.Discovery.Items, s.Discovery.PagesOK, s.Discovery.PagesFailed, s.Discovery.Appended)
	fmt.Fprintf(&b, "Unique links: %d\n", s.UniqueLinks)
	fmt.Fprintf(&b, "Extraction: %d products written, %d skipped\n", s.Extraction.Appended, s.Extraction.Skipped)
	if failed := s.Discovery.ShardsFailed + s.Extraction.ShardsFailed; failed > 0 {
		fmt.Fprintf(&b, "Shards failed: %d\n", failed)
	}
	if s.ErrorText != "" {
		fmt.Fprintf(&b, "Error: %s\n", s.ErrorText)
	}
	return truncate(b.String())
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen-3] + "..."
}
