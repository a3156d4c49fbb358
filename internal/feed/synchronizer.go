package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmwedding/invitation/internal/changefeed"
	"github.com/pmwedding/invitation/internal/wishes"
)

// DefaultPollInterval is the fallback refetch period used when none is configured.
const DefaultPollInterval = 10 * time.Second

var (
	errMissingSource  = errors.New("feed: wish source required")
	errAlreadyStarted = errors.New("feed: synchronizer already started")
)

// Source returns every wish ordered newest first.
type Source interface {
	List(ctx context.Context) ([]wishes.Wish, error)
}

// SynchronizerConfig wires a synchronizer to its wish source and change stream.
type SynchronizerConfig struct {
	Source       Source
	Changes      changefeed.Subscriber
	PollInterval time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Synchronizer keeps one viewer's feed current. It refetches everything on start, on every
// change event, on every poll tick and on Refresh. Triggers that arrive while a refetch runs
// collapse into a single follow-up refetch, and refetches never overlap, so views are
// published in the order their fetches started.
type Synchronizer struct {
	source   Source
	changes  changefeed.Subscriber
	interval time.Duration
	clock    func() time.Time
	logger   *zap.Logger

	views    chan View
	triggers chan struct{}
	done     chan struct{}
	sequence uint64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// NewSynchronizer validates cfg and returns an idle synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		source:   cfg.Source,
		changes:  cfg.Changes,
		interval: interval,
		clock:    clock,
		logger:   logger,
		views:    make(chan View, 1),
		triggers: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}, nil
}

// Start acquires the change subscription and the poll ticker. Both are released when ctx
// is done or Stop is called, after which the Views channel is closed.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errAlreadyStarted
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
	return nil
}

// Views delivers published views. Only the latest unread view is retained.
func (s *Synchronizer) Views() <-chan View {
	return s.views
}

// Refresh requests a refetch without waiting for it.
func (s *Synchronizer) Refresh() {
	select {
	case s.triggers <- struct{}{}:
	default:
	}
}

// Stop releases the subscription and ticker and waits for the loop to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-s.done
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.views)

	var events <-chan changefeed.Event
	release := func() {}
	if s.changes != nil {
		events, release = s.changes.Subscribe(ctx, wishes.TableName, changefeed.AllEventTypes...)
	}
	defer release()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				events = nil
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("wish change subscription closed; relying on polling")
				s.publishEmpty()
				continue
			}
			events = s.drain(events)
			s.refresh(ctx)
		case <-ticker.C:
			events = s.drain(events)
			s.refresh(ctx)
		case <-s.triggers:
			events = s.drain(events)
			s.refresh(ctx)
		}
	}
}

// drain discards queued triggers so a burst yields one refetch. It returns nil once the event stream is closed.
func (s *Synchronizer) drain(events <-chan changefeed.Event) <-chan changefeed.Event {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return nil
			}
		case <-s.triggers:
		default:
			return events
		}
	}
}

func (s *Synchronizer) refresh(ctx context.Context) {
	records, err := s.source.List(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Error("wish feed refresh failed", zap.Error(err))
		s.publishEmpty()
		return
	}
	now := s.clock()
	entries := MapWishes(records, now)
	s.sequence++
	s.publish(View{
		Sequence:    s.sequence,
		Entries:     entries,
		Stats:       ComputeStats(entries),
		RefreshedAt: now.UTC(),
	})
}

func (s *Synchronizer) publishEmpty() {
	s.sequence++
	s.publish(View{
		Sequence:    s.sequence,
		Entries:     []Entry{},
		RefreshedAt: s.clock().UTC(),
	})
}

// publish replaces any unread view with view. Only the run loop sends, so the loop terminates.
func (s *Synchronizer) publish(view View) {
	for {
		select {
		case s.views <- view:
			return
		default:
		}
		select {
		case <-s.views:
		default:
		}
	}
}
