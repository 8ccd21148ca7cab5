// Package notify sends member notifications at most once per type, member and
// period. Messages are rendered from embedded templates and handed to a relay;
// the EmailEvent ledger records what was handed off.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/template/html/v2"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/clock"
)

//go:embed templates
var templateFS embed.FS

const layoutName = "layouts/email"

var subjects = map[string]string{
	models.EmailTypePaymentReceipt:      "Recibimos tu pago",
	models.EmailTypeDelinquencyReminder: "Tenés una cuota pendiente",
	models.EmailTypeSuspensionNotice:    "Tu participación fue suspendida",
}

// Content is the data shown in a notification.
type Content struct {
	MemberName  string
	Amount      string
	Currency    string
	Provider    string
	DueDate     string
	DaysOverdue int
}

// EmailEventInput identifies one notification and its recipient.
type EmailEventInput struct {
	Type     string
	TenantID string
	MemberID string
	Period   string
	To       string
	Content  Content
}

func (in EmailEventInput) key() string {
	return models.EmailIdempotencyKey(in.Type, in.MemberID, in.Period)
}

// Email is a rendered message ready for delivery.
type Email struct {
	To             string
	Subject        string
	HTMLBody       string
	Type           string
	TenantID       string
	MemberID       string
	Period         string
	IdempotencyKey string
}

// Relay accepts rendered messages for asynchronous delivery.
type Relay interface {
	Enqueue(ctx context.Context, email Email) error
}

// Dispatcher is the single entry point for outbound member email.
type Dispatcher struct {
	events repository.EmailEventRepository
	relay  Relay
	clock  clock.Clock
	engine *html.Engine
}

func NewDispatcher(events repository.EmailEventRepository, relay Relay, clk clock.Clock) (*Dispatcher, error) {
	if clk == nil {
		clk = clock.System{}
	}
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return &Dispatcher{events: events, relay: relay, clock: clk, engine: engine}, nil
}

// Send renders and enqueues the notification unless one with the same key
// was already recorded. It reports whether a message was handed to the relay.
// Two concurrent callers may both enqueue; only one EmailEvent is recorded.
func (d *Dispatcher) Send(ctx context.Context, in EmailEventInput) (bool, error) {
	subject, ok := subjects[in.Type]
	if !ok {
		return false, fmt.Errorf("unknown email type %q", in.Type)
	}
	if strings.TrimSpace(in.To) == "" {
		log.Debugf("[Notify] Member %s has no email, skipping %s", in.MemberID, in.Type)
		return false, nil
	}

	key := in.key()
	exists, err := d.events.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	body, err := d.Render(in.Type, subject, in.Period, in.Content)
	if err != nil {
		return false, err
	}

	if err := d.relay.Enqueue(ctx, Email{
		To:             in.To,
		Subject:        subject,
		HTMLBody:       body,
		Type:           in.Type,
		TenantID:       in.TenantID,
		MemberID:       in.MemberID,
		Period:         in.Period,
		IdempotencyKey: key,
	}); err != nil {
		return false, fmt.Errorf("enqueue %s: %w", key, err)
	}

	created, err := d.events.CreateIfAbsent(ctx, &models.EmailEvent{
		Type:           in.Type,
		TenantID:       in.TenantID,
		MemberID:       in.MemberID,
		Period:         in.Period,
		IdempotencyKey: key,
		SentAt:         d.clock.Now().UTC(),
	})
	if err != nil {
		return true, fmt.Errorf("record %s: %w", key, err)
	}
	if !created {
		log.Infof("[Notify] %s was recorded concurrently", key)
	}
	return true, nil
}

type view struct {
	Content
	Subject     string
	PeriodLabel string
}

// Render produces the HTML body for one email type.
func (d *Dispatcher) Render(emailType, subject, period string, content Content) (string, error) {
	var buf bytes.Buffer
	err := d.engine.Render(&buf, emailType, view{
		Content:     content,
		Subject:     subject,
		PeriodLabel: periodLabel(period),
	}, layoutName)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", emailType, err)
	}
	return buf.String(), nil
}

func periodLabel(period string) string {
	if period == models.PeriodRegistration {
		return "la inscripción"
	}
	if len(period) == 7 {
		return period[5:] + "/" + period[:4]
	}
	return period
}

// ErrRelayUnavailable is returned by relays that cannot accept messages.
var ErrRelayUnavailable = errors.New("mail relay unavailable")
