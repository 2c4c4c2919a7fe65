// Package mail delivers account notices.
//
// [SMTPSender] sends through an SMTP relay, [LogSender] writes messages to a
// structured log for local runs and [Outbox] records them in memory.
package mail

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"
)

// Subjects of the notices the engine sends.
const (
	SubjectPasswordReset   = "Reset Your Password - Lexicon"
	SubjectPasswordChanged = "Password Changed Successfully - Lexicon"
)

// PasswordResetMessage builds the reset notice for link.
func PasswordResetMessage(link string, ttl time.Duration) (subject, body string) {
	escaped := html.EscapeString(link)
	body = fmt.Sprintf(`<html><body>
<h2>Password Reset Request</h2>
<p>You requested to reset your password. Click the link below to continue:</p>
<p><a href="%s">Reset Password</a></p>
<p>This link expires in %s.</p>
<p>If you didn't request this, you can ignore this email.</p>
</body></html>`, escaped, humanDuration(ttl))
	return SubjectPasswordReset, body
}

// PasswordChangedMessage builds the confirmation sent after a reset.
func PasswordChangedMessage() (subject, body string) {
	return SubjectPasswordChanged, `<html><body>
<h2>Password Changed</h2>
<p>Your password has been changed successfully.</p>
<p>If you didn't make this change, contact support immediately.</p>
</body></html>`
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}

// LogSender logs messages instead of delivering them. Bodies are omitted
// because reset notices carry a live token.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, to, subject, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "lexauth: email suppressed", "to", to, "subject", subject)
	return nil
}

// Message is one recorded email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Outbox records messages in memory. Safe for concurrent use.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
	arrived  chan struct{}
	// Err, when set, is returned by Send instead of recording.
	Err error
}

func (o *Outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, Message{To: to, Subject: subject, Body: body})
	if o.arrived != nil {
		close(o.arrived)
		o.arrived = nil
	}
	return nil
}

// Await waits until a message with subject has been sent to to, or ctx
// ends. Messages already recorded count.
func (o *Outbox) Await(ctx context.Context, to, subject string) (Message, bool) {
	for {
		o.mu.Lock()
		for i := len(o.messages) - 1; i >= 0; i-- {
			if m := o.messages[i]; m.To == to && m.Subject == subject {
				o.mu.Unlock()
				return m, true
			}
		}
		if o.arrived == nil {
			o.arrived = make(chan struct{})
		}
		arrived := o.arrived
		o.mu.Unlock()

		select {
		case <-arrived:
		case <-ctx.Done():
			return Message{}, false
		}
	}
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Last returns the most recent message sent to to.
func (o *Outbox) Last(to string) (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.messages) - 1; i >= 0; i-- {
		if o.messages[i].To == to {
			return o.messages[i], true
		}
	}
	return Message{}, false
}
