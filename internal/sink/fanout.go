package sink

import (
	"context"
	"errors"

	"github.com/keithlinneman/linnemanlabs-seed/internal/seed"
)

// Fanout delivers every event to each sink in order. A failing sink does
// not stop delivery to the rest; the errors are joined.
type Fanout []seed.Sink

func (f Fanout) Output(ctx context.Context, ev seed.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Output(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) File(ctx context.Context, ev seed.FileEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.File(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
