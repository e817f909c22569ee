package stream

import (
	"context"

	"signalbot/internal/model"
)

// Feed delivers raw kline ticks for one key. Run blocks until ctx is
// cancelled (returning nil) or the transport fails (returning the error).
// emit is called from Run's goroutine only.
type Feed interface {
	Run(ctx context.Context, key model.Key, emit func(model.KlineTick)) error
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, key model.Key, emit func(model.KlineTick)) error

// Run calls f.
func (f FeedFunc) Run(ctx context.Context, key model.Key, emit func(model.KlineTick)) error {
	return f(ctx, key, emit)
}
