package notify

import (
	"context"
	"net/http"
	"strings"
)

// Embed colours by detection direction.
const (
	colorBuy   = 0x2ecc71
	colorSell  = 0xe74c3c
	colorTrade = 0x3498db
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender delivers notifications as embeds via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordPayload{
		Username: "whalewatch",
		Embeds: []discordEmbed{{
			Title:       title,
			Description: message,
			Color:       embedColor(title),
		}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

func embedColor(title string) int {
	switch {
	case strings.Contains(title, "SELL"):
		return colorSell
	case strings.Contains(title, "BUY"):
		return colorBuy
	default:
		return colorTrade
	}
}
