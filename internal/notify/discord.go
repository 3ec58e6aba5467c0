package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// DiscordSender posts one embed per signal to a channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender posts to the given channel webhook.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

// Name implements Sender.
func (d *DiscordSender) Name() string { return "discord" }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	URL         string         `json:"url,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

var severityColors = map[domain.SignalSeverity]int{
	domain.SeverityCritical: 0x8B0000,
	domain.SeverityHigh:     0xE74C3C,
	domain.SeverityMedium:   0xF39C12,
}

func severityColor(s domain.SignalSeverity) int {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return 0x95A5A6
}

// Send posts msg as a single embed.
func (d *DiscordSender) Send(ctx context.Context, msg Message) error {
	embed := discordEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       severityColor(msg.Severity),
		URL:         msg.URL,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}
	if msg.Action != "" {
		embed.Footer = &discordFooter{Text: msg.Action}
	}
	if !msg.At.IsZero() {
		embed.Timestamp = msg.At.UTC().Format(time.RFC3339)
	}
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, discordPayload{Embeds: []discordEmbed{embed}})
}
