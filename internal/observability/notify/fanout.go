package notify

import (
	"context"
	"errors"
)

// Fanout delivers each notice to every sink and joins their errors.
type Fanout []Sink

// SendStatusNotice implements the Sink interface.
func (f Fanout) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.SendStatusNotice(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
