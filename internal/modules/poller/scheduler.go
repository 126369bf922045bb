// Package poller drives the periodic fetch→diff→dispatch→commit
// pipeline, one independent scheduled task per subscribed feed URL.
package poller

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/notify"
	subDomain "github.com/ellis-vester/backloggd-discord/internal/modules/subscription/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/repository"
)

// Fetcher retrieves and parses one feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*feedDomain.FeedDocument, error)
}

// DiffEngine computes new items against the recorded watermark.
type DiffEngine interface {
	Diff(doc *feedDomain.FeedDocument, known *feedDomain.KnownIDs) ([]feedDomain.FeedItem, *feedDomain.KnownIDs)
}

// Dispatcher fans new items out to channels.
type Dispatcher interface {
	DispatchReviews(ctx context.Context, channelIDs []string, items []feedDomain.FeedItem) []notify.Delivery
	NotifyFeedBroken(ctx context.Context, channelIDs []string, feedURL string)
}

// Options carries the scheduling knobs, threaded in at construction.
type Options struct {
	PollInterval     time.Duration
	BackoffCap       time.Duration
	FailureThreshold int
	RetireGrace      time.Duration
	ShutdownTimeout  time.Duration
}

// FeedInfo is a point-in-time view of one scheduled feed, exposed for
// the status endpoint.
type FeedInfo struct {
	FeedURL      string                `json:"feed_url"`
	Status       feedDomain.FeedStatus `json:"status"`
	Subscribers  int                   `json:"subscribers"`
	FailureCount int                   `json:"failure_count"`
	LastPolledAt time.Time             `json:"last_polled_at"`
}

type feedTask struct {
	feedURL     string
	cancel      context.CancelFunc
	wake        chan struct{}
	retireTimer *time.Timer

	mu       sync.Mutex
	status   feedDomain.FeedStatus
	failures int
}

func (t *feedTask) setStatus(status feedDomain.FeedStatus, failures int) {
	t.mu.Lock()
	t.status = status
	t.failures = failures
	t.mu.Unlock()
}

func (t *feedTask) snapshot() (feedDomain.FeedStatus, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.failures
}

// Scheduler runs one timer loop per active feed URL. Ticks for
// different URLs are independent; the loop structure guarantees at
// most one pipeline in flight per URL, and a tick that would overlap
// is simply the next iteration rather than a queued backlog.
type Scheduler struct {
	opts       Options
	repo       repository.Repository
	fetcher    Fetcher
	engine     DiffEngine
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	feeds   map[string]*feedTask
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a scheduler.
func New(opts Options, repo repository.Repository, fetcher Fetcher, engine DiffEngine, dispatcher Dispatcher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:       opts,
		repo:       repo,
		fetcher:    fetcher,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		feeds:      make(map[string]*feedTask),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetLogger sets the logger.
func (s *Scheduler) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Start schedules every persisted feed that still has subscribers.
// Feeds without subscribers are never scheduled.
func (s *Scheduler) Start() error {
	states, err := s.repo.GetAllFeedStates()
	if err != nil {
		s.logger.Error("Failed to load feed states, starting with empty schedule", "error", err)
		return nil
	}

	for _, state := range states {
		if len(state.ChannelIDs) == 0 {
			// Orphaned by an unclean shutdown during the retire grace
			// period; drop it now.
			_ = s.repo.DeleteFeedState(state.FeedURL)
			continue
		}
		s.EnsureFeed(state.FeedURL, false)
	}
	return nil
}

// EnsureFeed schedules feedURL if it is not scheduled yet and cancels
// any pending retirement. With immediate set, the first poll happens
// right away instead of at the next tick boundary.
func (s *Scheduler) EnsureFeed(feedURL string, immediate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if task, ok := s.feeds[feedURL]; ok {
		if task.retireTimer != nil {
			task.retireTimer.Stop()
			task.retireTimer = nil
			s.logger.Info("Cancelled pending feed retirement", "feed_url", feedURL)
		}
		if immediate {
			select {
			case task.wake <- struct{}{}:
			default:
			}
		}
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	task := &feedTask{
		feedURL: feedURL,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		status:  feedDomain.FeedStatusIdle,
	}
	s.feeds[feedURL] = task

	s.wg.Add(1)
	go s.run(ctx, task, immediate)

	s.logger.Info("Feed scheduled", "feed_url", feedURL, "immediate", immediate)
}

// RetireFeed marks feedURL for retirement after the grace period. A
// re-subscription within the grace period keeps the feed and its
// watermark, so a quick unsubscribe/subscribe never replays items.
func (s *Scheduler) RetireFeed(feedURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.feeds[feedURL]
	if !ok || task.retireTimer != nil {
		return
	}

	task.retireTimer = time.AfterFunc(s.opts.RetireGrace, func() {
		s.retire(feedURL)
	})
	s.logger.Info("Feed marked for retirement", "feed_url", feedURL, "grace", s.opts.RetireGrace)
}

func (s *Scheduler) retire(feedURL string) {
	s.mu.Lock()
	task, ok := s.feeds[feedURL]
	if !ok {
		s.mu.Unlock()
		return
	}

	// A subscriber may have raced the grace timer.
	if state, err := s.repo.GetFeedState(feedURL); err == nil && len(state.ChannelIDs) > 0 {
		task.retireTimer = nil
		s.mu.Unlock()
		return
	}

	delete(s.feeds, feedURL)
	s.mu.Unlock()

	task.cancel()
	task.setStatus(feedDomain.FeedStatusRetired, 0)

	if err := s.repo.DeleteFeedState(feedURL); err != nil {
		s.logger.Error("Failed to delete retired feed state", "feed_url", feedURL, "error", err)
	}
	s.logger.Info("Feed retired", "feed_url", feedURL)
}

// Stop cancels all feed tasks and waits, bounded by ShutdownTimeout,
// for in-flight pipelines to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, task := range s.feeds {
		if task.retireTimer != nil {
			task.retireTimer.Stop()
		}
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
	case <-time.After(s.opts.ShutdownTimeout):
		s.logger.Warn("Scheduler shutdown timed out with pipelines in flight")
	}
}

// Feeds returns a snapshot of every scheduled feed.
func (s *Scheduler) Feeds() []FeedInfo {
	s.mu.Lock()
	tasks := make([]*feedTask, 0, len(s.feeds))
	for _, task := range s.feeds {
		tasks = append(tasks, task)
	}
	s.mu.Unlock()

	infos := make([]FeedInfo, 0, len(tasks))
	for _, task := range tasks {
		status, failures := task.snapshot()
		info := FeedInfo{
			FeedURL:      task.feedURL,
			Status:       status,
			FailureCount: failures,
		}
		if state, err := s.repo.GetFeedState(task.feedURL); err == nil {
			info.Subscribers = len(state.ChannelIDs)
			info.LastPolledAt = state.LastPolledAt
		}
		infos = append(infos, info)
	}
	return infos
}

// run is the per-feed timer loop. One iteration is one tick; the poll
// executes inline, so two pipelines for the same URL can never
// overlap.
func (s *Scheduler) run(ctx context.Context, task *feedTask, immediate bool) {
	defer s.wg.Done()

	failures := s.persistedFailures(task.feedURL)
	delay := s.nextDelay(failures)
	if immediate {
		delay = 0
	}

	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-task.wake:
			timer.Stop()
		case <-timer.C:
		}

		task.setStatus(feedDomain.FeedStatusPolling, failures)
		failures = s.poll(ctx, task.feedURL, failures)

		if failures > 0 {
			task.setStatus(feedDomain.FeedStatusBackoff, failures)
		} else {
			task.setStatus(feedDomain.FeedStatusIdle, 0)
		}
		delay = s.nextDelay(failures)
	}
}

// persistedFailures resumes the backoff position recorded before a
// restart.
func (s *Scheduler) persistedFailures(feedURL string) int {
	if state, err := s.repo.GetFeedState(feedURL); err == nil {
		return state.FailureCount
	}
	return 0
}

// poll runs one fetch→diff→dispatch→commit cycle and returns the new
// consecutive failure count.
func (s *Scheduler) poll(ctx context.Context, feedURL string, failures int) int {
	state, err := s.repo.GetFeedState(feedURL)
	if err != nil {
		// State vanished (retired concurrently); nothing to do.
		return failures
	}

	doc, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return s.recordFailure(ctx, feedURL, state, err)
	}

	newItems, updated := s.engine.Diff(doc, state.KnownIDs)

	if len(newItems) > 0 {
		deliveries := s.dispatcher.DispatchReviews(ctx, state.ChannelIDs, newItems)
		delivered := 0
		for _, d := range deliveries {
			if d.Delivered() {
				delivered++
			}
		}
		s.logger.Info("Dispatched new feed items",
			"feed_url", feedURL, "new_items", len(newItems),
			"deliveries", len(deliveries), "delivered", delivered)
	}

	// Commit the watermark once all sends have been attempted. Items
	// whose delivery failed are not re-notified; delivery is
	// best-effort, at most once per item.
	if _, err := s.repo.MutateFeedState(feedURL, func(st *subDomain.FeedState) {
		st.KnownIDs = updated
		st.LastPolledAt = time.Now().UTC()
		st.FailureCount = 0
		st.BrokenNotified = false
	}); err != nil {
		s.logger.Error("Failed to persist feed watermark", "feed_url", feedURL, "error", err)
	}

	return 0
}

func (s *Scheduler) recordFailure(ctx context.Context, feedURL string, state *subDomain.FeedState, fetchErr error) int {
	count := 0
	notified := false
	if _, err := s.repo.MutateFeedState(feedURL, func(st *subDomain.FeedState) {
		st.FailureCount++
		st.LastPolledAt = time.Now().UTC()
		count = st.FailureCount
		notified = st.BrokenNotified
		if count >= s.opts.FailureThreshold && !st.BrokenNotified {
			st.BrokenNotified = true
		}
	}); err != nil {
		s.logger.Error("Failed to persist feed failure", "feed_url", feedURL, "error", err)
	}

	s.logger.Warn("Feed poll failed", "feed_url", feedURL, "failures", count, "error", fetchErr)

	if count >= s.opts.FailureThreshold && !notified {
		s.dispatcher.NotifyFeedBroken(ctx, state.ChannelIDs, feedURL)
	}

	return count
}

// nextDelay is the baseline interval under exponential backoff with a
// little jitter so many feeds added together spread out.
func (s *Scheduler) nextDelay(failures int) time.Duration {
	delay := s.opts.PollInterval
	for i := 0; i < failures && delay < s.opts.BackoffCap; i++ {
		delay *= 2
	}
	if delay > s.opts.BackoffCap {
		delay = s.opts.BackoffCap
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}
