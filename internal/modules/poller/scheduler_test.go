package poller

import (
	"context"
	goerrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/ellis-vester/backloggd-discord/internal/modules/feed/dedup"
	feedDomain "github.com/ellis-vester/backloggd-discord/internal/modules/feed/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/notify"
	subDomain "github.com/ellis-vester/backloggd-discord/internal/modules/subscription/domain"
	"github.com/ellis-vester/backloggd-discord/internal/modules/subscription/repository"
	"github.com/ellis-vester/backloggd-discord/internal/shared/errors"
)

const testFeedURL = "https://backloggd.com/u/someone/reviews/rss/"

type fakeFetcher struct {
	mu    sync.Mutex
	doc   *feedDomain.FeedDocument
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*feedDomain.FeedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func (f *fakeFetcher) set(doc *feedDomain.FeedDocument, err error) {
	f.mu.Lock()
	f.doc = doc
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDispatcher struct {
	mu      sync.Mutex
	batches [][]feedDomain.FeedItem
	targets [][]string
	broken  int
	fail    bool
}

func (d *fakeDispatcher) DispatchReviews(ctx context.Context, channelIDs []string, items []feedDomain.FeedItem) []notify.Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, append([]feedDomain.FeedItem(nil), items...))
	d.targets = append(d.targets, append([]string(nil), channelIDs...))

	var deliveries []notify.Delivery
	for _, item := range items {
		for _, channelID := range channelIDs {
			delivery := notify.Delivery{ChannelID: channelID, ItemKey: item.Key()}
			if d.fail {
				delivery.Err = &feedDomain.DispatchError{
					Kind:      feedDomain.DispatchErrorUnknown,
					ChannelID: channelID,
					Err:       goerrors.New("send rejected"),
				}
			}
			deliveries = append(deliveries, delivery)
		}
	}
	return deliveries
}

func (d *fakeDispatcher) NotifyFeedBroken(ctx context.Context, channelIDs []string, feedURL string) {
	d.mu.Lock()
	d.broken++
	d.mu.Unlock()
}

func (d *fakeDispatcher) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func (d *fakeDispatcher) brokenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.broken
}

func testOptions() Options {
	return Options{
		PollInterval:     10 * time.Millisecond,
		BackoffCap:       40 * time.Millisecond,
		FailureThreshold: 3,
		RetireGrace:      20 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	}
}

func newTestScheduler(t *testing.T, opts Options, fetcher *fakeFetcher, dispatcher *fakeDispatcher) (*Scheduler, repository.Repository) {
	t.Helper()
	repo, err := repository.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStorage failed: %v", err)
	}
	s := New(opts, repo, fetcher, dedup.New(200), dispatcher)
	t.Cleanup(s.Stop)
	return s, repo
}

func subscribeChannels(t *testing.T, repo repository.Repository, channelIDs ...string) {
	t.Helper()
	if _, err := repo.MutateFeedState(testFeedURL, func(state *subDomain.FeedState) {
		for _, channelID := range channelIDs {
			state.AddChannel(channelID)
		}
	}); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}
}

// doc builds a feed document listing guids newest-first, the order the
// feed serves them in.
func doc(guids ...string) *feedDomain.FeedDocument {
	items := make([]feedDomain.FeedItem, 0, len(guids))
	for i, guid := range guids {
		items = append(items, feedDomain.FeedItem{
			Title:     "Review " + guid,
			Link:      "https://backloggd.com/u/someone/review/" + guid,
			GUID:      guid,
			Published: time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC).Add(-time.Duration(i) * time.Hour),
		})
	}
	return &feedDomain.FeedDocument{Title: "someone's reviews", Items: items}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestImmediateFirstPollSeedsWithoutNotifying(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i3", "i2", "i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "first poll", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Len() == 3
	})

	if n := dispatcher.batchCount(); n != 0 {
		t.Fatalf("expected no notifications on the seeding poll, got %d batches", n)
	}

	state, err := repo.GetFeedState(testFeedURL)
	if err != nil {
		t.Fatalf("GetFeedState failed: %v", err)
	}
	if state.LastPolledAt.IsZero() {
		t.Fatal("expected LastPolledAt to be recorded")
	}
}

func TestNewItemsDispatchedOncePerChannel(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i3", "i2", "i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1", "chan-2")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "seeding poll", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Len() == 3
	})

	// i4 appears, i1 drops off the end of the feed.
	fetcher.set(doc("i4", "i3", "i2"), nil)

	waitFor(t, "dispatch of i4", func() bool { return dispatcher.batchCount() >= 1 })

	// Later polls of the same document must not dispatch again.
	waitFor(t, "two more polls", func() bool { return fetcher.fetchCount() >= 5 })
	if n := dispatcher.batchCount(); n != 1 {
		t.Fatalf("expected exactly one dispatch batch, got %d", n)
	}

	dispatcher.mu.Lock()
	batch := dispatcher.batches[0]
	targets := dispatcher.targets[0]
	dispatcher.mu.Unlock()

	if len(batch) != 1 || batch[0].GUID != "i4" {
		t.Fatalf("expected only i4 to be dispatched, got %+v", batch)
	}
	if len(targets) != 2 {
		t.Fatalf("expected both channels as targets, got %v", targets)
	}

	state, err := repo.GetFeedState(testFeedURL)
	if err != nil {
		t.Fatalf("GetFeedState failed: %v", err)
	}
	if !state.KnownIDs.Contains("i4") || !state.KnownIDs.Contains("i1") {
		t.Fatalf("expected watermark to keep i4 and i1, got %v", state.KnownIDs.Keys())
	}
}

func TestFetchFailuresAccumulateAndReset(t *testing.T) {
	fetcher := &fakeFetcher{err: &feedDomain.FetchError{Kind: feedDomain.FetchErrorNetwork, Err: goerrors.New("connection refused")}}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "failure count to grow", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.FailureCount >= 4
	})

	fetcher.set(doc("i1"), nil)

	waitFor(t, "failure count to reset", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.FailureCount == 0 && !state.BrokenNotified
	})
}

func TestBrokenFeedNoticeFiresOnce(t *testing.T) {
	fetcher := &fakeFetcher{err: &feedDomain.FetchError{Kind: feedDomain.FetchErrorHTTPStatus, StatusCode: 500}}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "failures well past the threshold", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.FailureCount >= 6
	})

	if n := dispatcher.brokenCount(); n != 1 {
		t.Fatalf("expected exactly one broken-feed notice, got %d", n)
	}

	state, err := repo.GetFeedState(testFeedURL)
	if err != nil {
		t.Fatalf("GetFeedState failed: %v", err)
	}
	if !state.BrokenNotified {
		t.Fatal("expected BrokenNotified to be persisted")
	}
}

func TestFailedDispatchStillCommitsWatermark(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{fail: true}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "seeding poll", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Contains("i1")
	})

	fetcher.set(doc("i2", "i1"), nil)

	waitFor(t, "failed dispatch attempt", func() bool { return dispatcher.batchCount() >= 1 })
	waitFor(t, "watermark commit", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Contains("i2")
	})

	// The failed item is never retried.
	waitFor(t, "two more polls", func() bool { return fetcher.fetchCount() >= 4 })
	if n := dispatcher.batchCount(); n != 1 {
		t.Fatalf("expected no redelivery of a failed item, got %d batches", n)
	}
}

func TestStartSkipsFeedsWithoutSubscribers(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")

	orphanURL := "https://backloggd.com/u/orphan/reviews/rss/"
	if _, err := repo.MutateFeedState(orphanURL, func(state *subDomain.FeedState) {}); err != nil {
		t.Fatalf("failed to seed orphan state: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, "subscribed feed scheduled", func() bool { return len(s.Feeds()) == 1 })
	if feeds := s.Feeds(); feeds[0].FeedURL != testFeedURL {
		t.Fatalf("expected %s to be scheduled, got %v", testFeedURL, feeds)
	}

	if _, err := repo.GetFeedState(orphanURL); !goerrors.Is(err, errors.ErrFeedStateNotFound) {
		t.Fatalf("expected orphaned state to be deleted, got %v", err)
	}
}

func TestRetireRemovesFeedAfterGrace(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "seeding poll", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Len() == 1
	})

	if _, err := repo.MutateFeedState(testFeedURL, func(state *subDomain.FeedState) {
		state.RemoveChannel("chan-1")
	}); err != nil {
		t.Fatalf("failed to remove channel: %v", err)
	}
	s.RetireFeed(testFeedURL)

	waitFor(t, "feed retirement", func() bool { return len(s.Feeds()) == 0 })
	if _, err := repo.GetFeedState(testFeedURL); !goerrors.Is(err, errors.ErrFeedStateNotFound) {
		t.Fatalf("expected feed state to be deleted, got %v", err)
	}
}

func TestResubscribeDuringGraceKeepsWatermark(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{}
	opts := testOptions()
	opts.RetireGrace = 50 * time.Millisecond
	s, repo := newTestScheduler(t, opts, fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "seeding poll", func() bool {
		state, err := repo.GetFeedState(testFeedURL)
		return err == nil && state.KnownIDs.Len() == 1
	})

	s.RetireFeed(testFeedURL)
	s.EnsureFeed(testFeedURL, false)

	time.Sleep(3 * opts.RetireGrace)

	if len(s.Feeds()) != 1 {
		t.Fatal("expected feed to survive a cancelled retirement")
	}
	state, err := repo.GetFeedState(testFeedURL)
	if err != nil {
		t.Fatalf("expected feed state to survive, got %v", err)
	}
	if !state.KnownIDs.Contains("i1") {
		t.Fatal("expected watermark to survive a cancelled retirement")
	}
}

func TestEnsureFeedAfterStopIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1")
	s.Stop()
	s.EnsureFeed(testFeedURL, true)

	if len(s.Feeds()) != 0 {
		t.Fatal("expected no scheduling after Stop")
	}
}

func TestNextDelayBacksOffAndCaps(t *testing.T) {
	s := &Scheduler{opts: Options{
		PollInterval: 100 * time.Millisecond,
		BackoffCap:   400 * time.Millisecond,
	}}

	for failures, want := range map[int]time.Duration{
		0: 100 * time.Millisecond,
		1: 200 * time.Millisecond,
		2: 400 * time.Millisecond,
		9: 400 * time.Millisecond,
	} {
		got := s.nextDelay(failures)
		if got < want || got > want+want/10 {
			t.Fatalf("nextDelay(%d) = %v, want %v plus at most 10%% jitter", failures, got, want)
		}
	}
}

func TestFeedsReportsStatus(t *testing.T) {
	fetcher := &fakeFetcher{doc: doc("i1")}
	dispatcher := &fakeDispatcher{}
	s, repo := newTestScheduler(t, testOptions(), fetcher, dispatcher)

	subscribeChannels(t, repo, "chan-1", "chan-2")
	s.EnsureFeed(testFeedURL, true)

	waitFor(t, "status snapshot", func() bool {
		feeds := s.Feeds()
		return len(feeds) == 1 && feeds[0].Subscribers == 2 && !feeds[0].LastPolledAt.IsZero()
	})

	info := s.Feeds()[0]
	if info.FeedURL != testFeedURL {
		t.Fatalf("unexpected feed url %q", info.FeedURL)
	}
	if info.FailureCount != 0 {
		t.Fatalf("expected a healthy feed, got %d failures", info.FailureCount)
	}
}
