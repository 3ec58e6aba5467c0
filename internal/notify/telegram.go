package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts to a chat through the Bot API sendMessage call.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender posts to chatID through the bot identified by token.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{baseURL: telegramAPI, token: token, chatID: chatID, client: newHTTPClient()}
}

// WithBaseURL points the sender at another Bot API host.
func (t *TelegramSender) WithBaseURL(u string) *TelegramSender {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// Name implements Sender.
func (t *TelegramSender) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send renders msg as HTML and calls sendMessage.
func (t *TelegramSender) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, t.client, t.Name(),
		fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token),
		telegramMessage{ChatID: t.chatID, Text: telegramHTML(msg), ParseMode: "HTML", DisableWebPagePreview: true})
}

// telegramHTML renders msg in Telegram's HTML subset; addresses with
// underscores would break the Markdown mode.
func telegramHTML(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>", htmlEscape(msg.Title))
	if msg.Body != "" {
		b.WriteString("\n" + htmlEscape(msg.Body))
	}
	for _, f := range msg.Fields {
		fmt.Fprintf(&b, "\n<b>%s:</b> <code>%s</code>", htmlEscape(f.Name), htmlEscape(f.Value))
	}
	if msg.Action != "" {
		b.WriteString("\n\n<i>" + htmlEscape(msg.Action) + "</i>")
	}
	return b.String()
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }
