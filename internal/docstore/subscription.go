package docstore

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscription delivers snapshots of one document. Only the latest snapshot
// is buffered: a slow reader skips intermediate versions but never receives
// an older one after a newer one.
type Subscription struct {
	C <-chan *Snapshot

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close releases the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// watch starts the goroutine behind Store.Watch: it pushes the current
// snapshot, then re-reads path on every feed signal.
func watch(ctx context.Context, reader Reader, feed Feed, path string) (*Subscription, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	signals, unsubscribe, err := feed.Subscribe(ctx, path)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan *Snapshot, 1)
	sub := &Subscription{C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(out)
		defer unsubscribe()

		var (
			lastVersion int64
			lastExists  bool
			sent        bool
		)
		push := func() {
			snap, err := reader.Get(ctx, path)
			if errors.Is(err, ErrNotFound) {
				snap, err = &Snapshot{Path: path}, nil
			}
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("path", path).Msg("Failed to refresh watched document")
				}
				return
			}
			if sent && snap.Exists == lastExists && snap.Version <= lastVersion {
				return
			}
			sent, lastExists, lastVersion = true, snap.Exists, snap.Version
			offer(out, snap)
		}

		push()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				push()
			}
		}
	}()
	return sub, nil
}

// offer replaces any unread snapshot with snap. The watcher goroutine is the
// only sender, so the second send cannot block.
func offer(out chan *Snapshot, snap *Snapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}
