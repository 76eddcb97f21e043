// Package email delivers plain notification mail for redemption codes and
// campaign distributions.
package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/dukerupert/coinvault/internal/config"
)

type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
	Configured() bool
}

type disabled struct{}

func (disabled) Send(context.Context, Message) error { return ErrNotConfigured }
func (disabled) Configured() bool                    { return false }

// New picks Postmark when a token is set, SMTP when a host is set, and a
// sender that always reports ErrNotConfigured otherwise.
func New(cfg config.EmailConfig, baseURL string) Sender {
	if cfg.PostmarkToken != "" {
		return NewClient(cfg.PostmarkToken, cfg.From, baseURL)
	}
	if cfg.SMTPHost != "" {
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From)
	}
	return disabled{}
}

// CodeMessage builds the mail carrying a redemption code.
func CodeMessage(to, name, code string, coins int64, expiresAt time.Time, baseURL string) Message {
	if name == "" {
		name = "there"
	}
	expires := expiresAt.Format("January 2, 2006")
	link := baseURL + "/redeem"
	text := fmt.Sprintf(
		"Hi %s,\n\nYou have received %d coins.\n\nRedemption code: %s\n\nRedeem it at %s before %s.",
		name, coins, code, link, expires,
	)
	htmlBody := fmt.Sprintf(
		`<p>Hi %s,</p><p>You have received <strong>%d coins</strong>.</p><p>Redemption code: <code>%s</code></p><p><a href="%s">Redeem</a> before %s.</p>`,
		html.EscapeString(name), coins, code, link, expires,
	)
	return Message{To: to, Subject: fmt.Sprintf("You received %d coins", coins), TextBody: text, HTMLBody: htmlBody}
}

// CampaignMessage builds the mail announcing campaign coins.
func CampaignMessage(to, name, campaign string, coins int64, customMessage string) Message {
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s,\n\nYou have received %d coins from the %q campaign.", name, coins, campaign)
	htmlBody := fmt.Sprintf(`<p>Hi %s,</p><p>You have received <strong>%d coins</strong> from the <em>%s</em> campaign.</p>`,
		html.EscapeString(name), coins, html.EscapeString(campaign))
	if customMessage != "" {
		text += "\n\n" + customMessage
		htmlBody += "<p>" + html.EscapeString(customMessage) + "</p>"
	}
	return Message{To: to, Subject: "New campaign coins: " + campaign, TextBody: text, HTMLBody: htmlBody}
}
