// Package projector keeps the Redis AccountView read model in step with the
// ledger by consuming the bank event stream.
package projector

import (
	"context"

	"github.com/eaglebank/bank-service/internal/repository"
	"github.com/eaglebank/bank-service/shared/events"
	"github.com/sirupsen/logrus"
)

type Projector struct {
	views *repository.AccountViewRepository
	log   logrus.FieldLogger
}

func New(views *repository.AccountViewRepository, logger logrus.FieldLogger) *Projector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Projector{views: views, log: logger.WithField("component", "projector")}
}

// HandleEvent is an events.Handler. Duplicate deliveries of the same event
// ID are skipped; a failed decode leaves the message pending.
func (p *Projector) HandleEvent(ctx context.Context, event events.Event) error {
	if p.views.IsEventProcessed(ctx, event.ID) {
		p.log.WithField("event_id", event.ID).Debug("event already projected, skipping")
		return nil
	}

	switch event.Type {
	case events.LedgerCommitted:
		var data events.LedgerCommittedEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		for _, state := range data.Accounts {
			p.views.Refresh(ctx, state)
		}
		p.log.WithFields(logrus.Fields{
			"operation": data.Operation,
			"username":  data.Username,
			"accounts":  len(data.Accounts),
		}).Debug("projected ledger commit")

	case events.AccountRegistered:
		var data events.AccountRegisteredEvent
		if err := events.Decode(event, &data); err != nil {
			return err
		}
		// A fresh account supersedes whatever view was cached under the name.
		p.views.InvalidateAccountView(ctx, data.Username)

	default:
		return nil
	}

	p.views.MarkEventProcessed(ctx, event.ID)
	return nil
}
