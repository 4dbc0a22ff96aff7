// Package notify delivers alert messages to every configured channel.
package notify

import (
	"context"
	"errors"
	"fmt"

	"arbwatch/internal/application/port"

	"github.com/rs/zerolog/log"
)

// Notifier fans a message out to all senders. A failing sender does not
// prevent delivery to the others; the failures are joined and returned.
type Notifier struct {
	senders []port.Sender
}

func NewNotifier(senders ...port.Sender) *Notifier {
	out := make([]port.Sender, 0, len(senders))
	for _, s := range senders {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Notifier{senders: out}
}

func (n *Notifier) Senders() []string {
	names := make([]string, 0, len(n.senders))
	for _, s := range n.senders {
		names = append(names, s.Name())
	}
	return names
}

func (n *Notifier) Dispatch(ctx context.Context, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, message); err != nil {
			log.Error().Err(err).Str("sender", s.Name()).Msg("sender failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		log.Debug().Str("sender", s.Name()).Msg("notification sent")
	}
	return errors.Join(errs...)
}

var _ port.Dispatcher = (*Notifier)(nil)
