package realtime

import (
	"context"
	"errors"
	"log/slog"
)

// ErrFeedClosed is reported by a subscription whose bus feed went away.
var ErrFeedClosed = errors.New("realtime: feed closed")

// Source describes a live query built from an initial read plus a bus topic.
type Source[T any] struct {
	Bus   Bus
	Topic string
	// Snapshot reads the current result set.
	Snapshot func(ctx context.Context) ([]T, error)
	// Load turns one bus payload into the document's current state.
	// Returning ok=false skips the payload.
	Load func(ctx context.Context, payload []byte) (doc T, ok bool, err error)
	View *View[T]
}

// Watch subscribes to the topic first and reads the snapshot second, so no
// change between the two is lost; the view drops the duplicates.
func Watch[T any](ctx context.Context, src Source[T], buffer int) (*Subscription[T], error) {
	feed, err := src.Bus.Subscribe(ctx, src.Topic)
	if err != nil {
		return nil, err
	}

	initial, err := src.Snapshot(ctx)
	if err != nil {
		_ = feed.Close()
		return nil, err
	}

	sub, subCtx := NewSubscription[T](ctx, buffer)
	go func() {
		defer feed.Close()

		for _, doc := range initial {
			if ch, ok := src.View.Apply(doc); ok {
				if !sub.Send(subCtx, ch) {
					sub.Finish(nil)
					return
				}
			}
		}

		msgs := feed.Messages()
		for {
			select {
			case <-subCtx.Done():
				sub.Finish(nil)
				return
			case raw, ok := <-msgs:
				if !ok {
					sub.Finish(ErrFeedClosed)
					return
				}
				doc, found, err := src.Load(subCtx, raw)
				if err != nil {
					if subCtx.Err() != nil {
						sub.Finish(nil)
						return
					}
					slog.Warn("live query: dropping change", "topic", src.Topic, "error", err)
					continue
				}
				if !found {
					continue
				}
				if ch, ok := src.View.Apply(doc); ok {
					if !sub.Send(subCtx, ch) {
						sub.Finish(nil)
						return
					}
				}
			}
		}
	}()

	return sub, nil
}
