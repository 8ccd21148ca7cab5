package payments

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClubDues/app/models"
	"github.com/ManuelReschke/ClubDues/app/repository"
	"github.com/ManuelReschke/ClubDues/internal/pkg/notify"
)

// Dunning thresholds in days overdue.
const (
	ReminderAfterDays   = 10
	SuspensionAfterDays = 30
)

// DunningResult counts the actions of one run.
type DunningResult struct {
	Reminders   int `json:"reminders"`
	Suspensions int `json:"suspensions"`
	Skipped     int `json:"skipped"`
}

// Dunning reminds and suspends delinquent members. Runs are idempotent: the
// dispatcher key prevents repeated email and suspension is only applied to
// active members.
type Dunning struct {
	engine   *Engine
	members  repository.MemberRepository
	notifier Notifier
}

func NewDunning(engine *Engine, members repository.MemberRepository, notifier Notifier) *Dunning {
	return &Dunning{engine: engine, members: members, notifier: notifier}
}

func (d *Dunning) Run(ctx context.Context, tenantID string) (*DunningResult, error) {
	delinquents, err := d.engine.ComputeDelinquents(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := &DunningResult{}
	for _, info := range delinquents {
		switch {
		case info.DaysOverdue >= SuspensionAfterDays:
			suspended := false
			if info.Status == models.MemberStatusActive {
				if err := d.members.SetStatus(ctx, info.TenantID, info.MemberID, models.MemberStatusSuspended); err != nil {
					return res, err
				}
				log.Infof("[Dunning] Suspended member %s of tenant %s (%d days overdue on %s)",
					info.MemberID, info.TenantID, info.DaysOverdue, info.Period)
				suspended = true
				res.Suspensions++
			}
			sent := d.send(ctx, models.EmailTypeSuspensionNotice, info)
			if !suspended && !sent {
				res.Skipped++
			}
		case info.DaysOverdue >= ReminderAfterDays:
			if d.send(ctx, models.EmailTypeDelinquencyReminder, info) {
				res.Reminders++
			} else {
				res.Skipped++
			}
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (d *Dunning) send(ctx context.Context, emailType string, info DelinquentInfo) bool {
	sent, err := d.notifier.Send(ctx, notify.EmailEventInput{
		Type:     emailType,
		TenantID: info.TenantID,
		MemberID: info.MemberID,
		Period:   info.Period,
		To:       info.Email,
		Content: notify.Content{
			MemberName:  info.MemberName,
			Amount:      info.Amount.StringFixed(2),
			Currency:    info.Currency,
			DueDate:     info.DueDate.Format(dateLayout),
			DaysOverdue: info.DaysOverdue,
		},
	})
	if err != nil {
		log.Warnf("[Dunning] %s for member %s period %s not sent: %v", emailType, info.MemberID, info.Period, err)
		return false
	}
	return sent
}
