package docstore

import (
	"context"
	"sync"
)

// Feed carries "path changed" signals from committers to watchers. Signals
// carry no payload; watchers re-read the document, so a lost or duplicated
// signal only delays or repeats a read.
type Feed interface {
	Publish(ctx context.Context, path string) error
	// Subscribe returns a channel that receives a value after each change of
	// path, and a function releasing the subscription.
	Subscribe(ctx context.Context, path string) (<-chan struct{}, func(), error)
}

// LocalFeed is an in-process Feed.
type LocalFeed struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalFeed creates an in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[string]map[chan struct{}]struct{})}
}

func (f *LocalFeed) Publish(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[path] {
		signal(ch)
	}
	return nil
}

func (f *LocalFeed) Subscribe(_ context.Context, path string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if f.subs[path] == nil {
		f.subs[path] = make(map[chan struct{}]struct{})
	}
	f.subs[path][ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[path], ch)
			if len(f.subs[path]) == 0 {
				delete(f.subs, path)
			}
		})
	}
	return ch, cancel, nil
}

// signal performs a non-blocking send; a pending signal already covers this one.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
