package notify

import (
	"context"
	"errors"
)

// Multi delivers each event to every notifier in order. One failure does
// not stop delivery to the rest; all failures are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = Multi(nil)
