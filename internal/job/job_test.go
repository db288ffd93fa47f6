package job

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/database/memory"
	plog "pricewatch/internal/logger"
	"pricewatch/internal/model"
	"pricewatch/internal/parser"
)

type result struct {
	snap model.Snapshot
	ok   bool
}

type stubFetcher struct {
	mu      sync.Mutex
	results map[string]result
	calls   map[string]int
	onFetch func()
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{results: make(map[string]result), calls: make(map[string]int)}
}

func (f *stubFetcher) set(link string, snap model.Snapshot, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[link] = result{snap: snap, ok: ok}
}

func (f *stubFetcher) Fetch(_ context.Context, _ string, link string) (model.Snapshot, bool) {
	f.mu.Lock()
	f.calls[link]++
	r := f.results[link]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.snap, r.ok
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Send(ctx context.Context, recipient string, message string) error {
	args := m.Called(ctx, recipient, message)
	return args.Error(0)
}

type countingParser struct {
	name  string
	calls int
}

func (p *countingParser) Marketplace() string { return p.name }

func (p *countingParser) Parse(context.Context, string) (model.Snapshot, error) {
	p.calls++
	return model.NewSnapshot("Widget", model.Float(1), nil), nil
}

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	fetcher *stubFetcher
	channel *mockChannel
	job     *Job
	product string
}

const widgetLink = "https://shopee.co.id/widget-i.1.2"

// newFixture seeds one user with one product whose last record is (100, 90).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	uid := store.UserInsert("alice", "chat-1")
	pid, err := store.ProductInsert(uid, "shopee", widgetLink)
	require.NoError(t, err)
	require.NoError(t, store.PriceInsert(model.PriceRecord{ProductID: pid, BasePrice: 100, DiscountedPrice: 90, CreatedAt: t0}))

	f := &fixture{store: store, fetcher: newStubFetcher(), channel: &mockChannel{}, product: pid}
	f.job = &Job{
		Store:    store,
		Gateway:  f.fetcher,
		Notifier: f.channel,
		Logger:   plog.Discard(),
		Workers:  2,
		Now:      func() time.Time { return t0.Add(time.Hour) },
	}
	return f
}

func messageContains(parts ...string) interface{} {
	return mock.MatchedBy(func(msg string) bool {
		for _, p := range parts {
			if !strings.Contains(msg, p) {
				return false
			}
		}
		return true
	})
}

func TestRun_PriceChange(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(120), model.Float(90)), true)
	f.channel.On("Send", mock.Anything, "chat-1", messageContains("Widget", "120", "90")).Return(nil).Once()

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertExpectations(t)
	history := f.store.History(f.product)
	require.Len(t, history, 2)
	assert.Equal(t, model.PriceRecord{ProductID: f.product, BasePrice: 120, DiscountedPrice: 90, CreatedAt: t0.Add(time.Hour)}, history[1])

	assert.NotEmpty(t, rep.CycleID)
	assert.Equal(t, 1, rep.Users)
	assert.Equal(t, 1, rep.Products)
	assert.Equal(t, 1, rep.Changed)
	assert.Equal(t, 1, rep.Notified)
	assert.Equal(t, 1, rep.Persisted)
	assert.False(t, rep.FinishedAt.Before(rep.StartedAt))
}

func TestRun_NoOpWithinTolerance(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(100+1e-12), model.Float(90)), true)

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.store.History(f.product), 1)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Equal(t, 0, rep.Persisted)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(120), model.Float(90)), true)
	f.channel.On("Send", mock.Anything, "chat-1", mock.Anything).Return(nil).Once()

	_, err := f.job.Run(context.Background())
	require.NoError(t, err)
	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)
	rep2, err := f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertNumberOfCalls(t, "Send", 1)
	assert.Len(t, f.store.History(f.product), 2)
	assert.Equal(t, 0, rep.Changed)
	assert.Equal(t, 0, rep2.Changed)
	assert.NotEqual(t, rep.CycleID, rep2.CycleID)
}

func TestRun_UnparseableSkipped(t *testing.T) {
	f := newFixture(t)
	// prices without a title never count
	f.fetcher.set(widgetLink, model.Snapshot{Price: model.Float(500), CardPrice: model.Float(400)}, true)

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, f.store.History(f.product), 1)
	assert.Equal(t, 1, rep.Skipped)

	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(500), nil), false)
	rep, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, f.store.History(f.product), 1)
}

func TestRun_NoParserSkipped(t *testing.T) {
	f := newFixture(t)
	uid := f.store.UserInsert("bob", "chat-2")
	pid, err := f.store.ProductInsert(uid, "unknown-market", "https://example.com/item")
	require.NoError(t, err)

	tokopedia := &countingParser{name: "tokopedia"}
	f.job.Gateway = parser.NewGateway(parser.NewRegistry(tokopedia), time.Second, 0, plog.Discard())

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, tokopedia.calls)
	f.channel.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.store.History(pid))
	assert.Equal(t, 2, rep.Skipped)
}

func TestRun_FirstObservation(t *testing.T) {
	f := newFixture(t)
	uid := f.store.UserInsert("bob", "chat-2")
	pid, err := f.store.ProductInsert(uid, "shopee", "https://shopee.co.id/new-i.3.4")
	require.NoError(t, err)
	f.fetcher.set("https://shopee.co.id/new-i.3.4", model.NewSnapshot("Gadget", model.Float(50), nil), true)
	f.channel.On("Send", mock.Anything, "chat-2", messageContains("Gadget", "50")).Return(nil).Once()

	_, err = f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertExpectations(t)
	require.Len(t, f.store.History(pid), 1)
	assert.Equal(t, 50.0, f.store.History(pid)[0].BasePrice)
}

func TestRun_NotificationFailureStillPersists(t *testing.T) {
	f := newFixture(t)
	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(120), model.Float(90)), true)
	f.channel.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bot blocked")).Once()

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.store.History(f.product), 2)
	assert.Equal(t, 1, rep.NotifyFailed)
	assert.Equal(t, 0, rep.Notified)
	assert.Equal(t, 1, rep.Persisted)
}

func TestRun_PersistFailureIsAtomic(t *testing.T) {
	f := newFixture(t)
	uid := f.store.UserInsert("bob", "chat-2")
	other, err := f.store.ProductInsert(uid, "shopee", "https://shopee.co.id/other-i.5.6")
	require.NoError(t, err)

	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(120), model.Float(90)), true)
	f.fetcher.set("https://shopee.co.id/other-i.5.6", model.NewSnapshot("Other", model.Float(10), nil), true)
	f.channel.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.store.FailAppend = errors.New("disk full")

	rep, err := f.job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersist))

	assert.Len(t, f.store.History(f.product), 1)
	assert.Empty(t, f.store.History(other))
	assert.Equal(t, 2, rep.Changed)
	assert.Equal(t, 0, rep.Persisted)

	opened, closed := f.store.Sessions()
	assert.Equal(t, opened, closed)

	// the change is detected again once the store recovers
	f.store.FailAppend = nil
	rep, err = f.job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Persisted)
	assert.Len(t, f.store.History(f.product), 2)
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.fetcher.set(widgetLink, model.NewSnapshot("Widget", model.Float(120), model.Float(90)), true)
	f.fetcher.onFetch = cancel
	f.channel.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	_, err := f.job.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.store.History(f.product), 1)

	opened, closed := f.store.Sessions()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestRun_ManyProducts(t *testing.T) {
	f := newFixture(t)
	f.job.Workers = 3
	uid := f.store.UserInsert("bob", "chat-2")
	var ids []string
	for i := 0; i < 20; i++ {
		link := fmt.Sprintf("https://shopee.co.id/item-i.%d.%d", i, i)
		id, err := f.store.ProductInsert(uid, "shopee", link)
		require.NoError(t, err)
		ids = append(ids, id)
		f.fetcher.set(link, model.NewSnapshot(fmt.Sprintf("Item %d", i), model.Float(float64(i+1)), nil), true)
	}
	f.channel.On("Send", mock.Anything, "chat-2", mock.Anything).Return(nil).Times(20)

	rep, err := f.job.Run(context.Background())
	require.NoError(t, err)

	f.channel.AssertExpectations(t)
	assert.Equal(t, 21, rep.Products)
	assert.Equal(t, 20, rep.Changed)
	assert.Equal(t, 1, rep.Skipped)
	for i, id := range ids {
		history := f.store.History(id)
		require.Len(t, history, 1)
		assert.Equal(t, float64(i+1), history[0].BasePrice)
	}
	for link, n := range f.fetcher.calls {
		assert.Equal(t, 1, n, link)
	}
}
