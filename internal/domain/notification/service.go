package notification

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"loteo/internal/pkg/errs"
)

type Notifier interface {
	NotifyPaid(ctx context.Context, ev PaidEvent) error
}

// Noop is used when no notification target is configured.
type Noop struct{}

func (Noop) NotifyPaid(context.Context, PaidEvent) error { return nil }

// Multi delivers to every notifier and joins their failures.
type Multi []Notifier

func (m Multi) NotifyPaid(ctx context.Context, ev PaidEvent) error {
	var result error
	for _, n := range m {
		if err := n.NotifyPaid(ctx, ev); err != nil {
			result = errs.CombineErrors(result, err)
		}
	}
	return result
}

// Dispatcher runs notifications in the background. The caller never waits
// on delivery and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      logrus.FieldLogger
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, timeout time.Duration, log logrus.FieldLogger) *Dispatcher {
	if n == nil {
		n = Noop{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout, log: log}
}

func (d *Dispatcher) Dispatch(ev PaidEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.NotifyPaid(ctx, ev); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"reservation_id": ev.ReservationID,
				"lot_id":         ev.LotID,
				"buy_order":      ev.BuyOrder,
			}).Error("paid notification failed")
			return
		}
		d.log.WithField("reservation_id", ev.ReservationID).Debug("paid notification sent")
	}()
}

// Wait blocks until in-flight notifications finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// FromConfig builds the notifier chain from the configured targets.
func FromConfig(webhookURL, amqpURL, queue string, timeout time.Duration) Notifier {
	var m Multi
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL, timeout))
	}
	if amqpURL != "" {
		m = append(m, NewAMQPNotifier(amqpURL, queue))
	}
	switch len(m) {
	case 0:
		return Noop{}
	case 1:
		return m[0]
	}
	return m
}
