// Package notifications fans trade and signal alerts out to chat channels.
package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultBotName = "TrahnAutoTrader"

type Sender interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg string) error
}

// Dispatcher delivers each message to every enabled sender in the
// background. Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	senders []Sender
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, senders ...Sender) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{log: log.Named("notify"), timeout: 30 * time.Second}
	for _, s := range senders {
		if s != nil && s.Enabled() {
			d.senders = append(d.senders, s)
		}
	}
	return d
}

func (d *Dispatcher) Enabled() bool { return len(d.senders) > 0 }

func (d *Dispatcher) Notify(msg string) {
	d.log.Info("notification", zap.String("msg", msg))
	for _, s := range d.senders {
		d.wg.Add(1)
		go func(s Sender) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := s.Send(ctx, msg); err != nil {
				d.log.Warn("notification failed", zap.String("sender", s.Name()), zap.Error(err))
			}
		}(s)
	}
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
