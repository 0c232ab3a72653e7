package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CCNLMonitor/internal/change"
	"CCNLMonitor/internal/classifier"
	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/infrastructure/parser"
	"CCNLMonitor/internal/infrastructure/storage"
	"CCNLMonitor/internal/notify"
	"CCNLMonitor/internal/version"
)

var fixedNow = time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)

type fakeFeeds struct {
	items   []domain.FeedItem
	healthy bool

	mu     sync.Mutex
	marked []string
}

func (f *fakeFeeds) FetchAll(context.Context) []domain.FeedItem { return f.items }

func (f *fakeFeeds) MarkProcessed(_ context.Context, guid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, guid)
}

func (f *fakeFeeds) ActiveSourceCount() int { return 1 }

func (f *fakeFeeds) Healthy(context.Context) bool { return f.healthy }

func (f *fakeFeeds) markedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.marked)
}

// slowClassifier drops every item after a short delay and records peak concurrency.
type slowClassifier struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	panicOn  string
}

func (c *slowClassifier) Detect(item domain.FeedItem) (domain.Detection, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	if item.GUID == c.panicOn {
		panic("classifier exploded")
	}
	return domain.Detection{Item: item, Confidence: 0.1}, domain.ErrLowConfidence
}

func (c *slowClassifier) ClassifyUpdate(context.Context, domain.FeedItem) domain.Classification {
	return domain.Classification{}
}

func (c *slowClassifier) Healthy(context.Context) bool { return true }

// invalidDocuments rejects every payload.
type invalidDocuments struct {
	*document.Processor
}

func (invalidDocuments) Validate(domain.ExtractedData) domain.ValidationResult {
	return domain.ValidationResult{Errors: []string{"salary for level_1 is negative: -100"}}
}

// panickyDocuments blows up halfway through the workflow.
type panickyDocuments struct {
	*document.Processor
}

func (panickyDocuments) Validate(domain.ExtractedData) domain.ValidationResult {
	panic("validator exploded")
}

func items(n int) []domain.FeedItem {
	out := make([]domain.FeedItem, n)
	for i := range out {
		out[i] = domain.FeedItem{GUID: fmt.Sprintf("item-%02d", i), Title: "Comunicato"}
	}
	return out
}

func newPipeline(t *testing.T, feeds FeedSource, docs DocumentProcessor) (*Orchestrator, *storage.MemoryStore) {
	t.Helper()

	now := func() time.Time { return fixedNow }
	store := storage.NewMemoryStore()

	channels := []domain.Channel{
		domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush, domain.ChannelInApp, domain.ChannelWebhook,
	}
	deps := notify.Deps{
		Directory:         notify.StaticDirectory{"commercio": {"b@example.org", "a@example.org"}},
		SectorKeywords:    map[string][]string{"commercio": {"commercio"}},
		OversightAccounts: []string{"admin@example.org"},
		Now:               now,
	}
	for _, ch := range channels {
		deps.Gateways = append(deps.Gateways, notify.NewLogGateway(ch, nil))
	}

	if docs == nil {
		docs = document.NewProcessor(document.Deps{
			Registry: document.NewRegistry(parser.NewTextParser()),
			Now:      now,
		})
	}

	o := NewOrchestrator(OrchestratorDeps{
		Feeds:      feeds,
		Classifier: classifier.New(classifier.DefaultRules(), nil, nil),
		Documents:  docs,
		Versions: version.NewManager(version.Deps{
			Store:    store,
			Analyzer: change.NewAnalyzer(nil),
			Now:      now,
		}),
		Notifier:   notify.NewDispatcher(deps),
		Repository: store,
		Now:        now,
	})
	return o, store
}

func TestProcessFullWorkflowNoUpdateDetected(t *testing.T) {
	t.Parallel()

	o, store := newPipeline(t, &fakeFeeds{}, nil)
	result := o.ProcessFullWorkflow(context.Background(), domain.FeedItem{GUID: "x", Title: "Previsioni meteo"})

	assert.True(t, result.Success)
	assert.Equal(t, "no update detected", result.Message)
	assert.False(t, result.VersionCreated)
	assert.NotEmpty(t, result.WorkflowID)
	assert.Empty(t, store.Events())
}

func TestProcessFullWorkflowCreatesVersionAndNotifies(t *testing.T) {
	t.Parallel()

	o, store := newPipeline(t, &fakeFeeds{}, nil)
	item := domain.FeedItem{
		GUID:        "g-1",
		SourceID:    "cnel",
		Title:       "Rinnovo CCNL commercio firmato",
		Description: "Aumento del 5% dei minimi retributivi",
	}

	result := o.ProcessFullWorkflow(context.Background(), item)
	require.True(t, result.Success, result.Errors)
	assert.True(t, result.VersionCreated)
	assert.Equal(t, 3, result.ChangesCount)
	// Renewal template: email, push, in_app and webhook, three recipients each.
	assert.Equal(t, 12, result.NotificationsSent)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)

	event, ok := store.Event(result.EventID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusIntegrated, event.Status)
	assert.Equal(t, "ccnl-commercio", event.AgreementID)
	require.NotNil(t, event.ProcessedAt)

	logs := store.ChangeLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ChangeTypeCreation, logs[0].ChangeType)
	assert.Nil(t, logs[0].OldVersionID)

	// Same figures again: a new version, nothing changed, nobody notified.
	again := o.ProcessFullWorkflow(context.Background(), item)
	require.True(t, again.Success, again.Errors)
	assert.True(t, again.VersionCreated)
	assert.Zero(t, again.ChangesCount)
	assert.Zero(t, again.NotificationsSent)

	logs = store.ChangeLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, domain.ChangeTypeUpdate, logs[1].ChangeType)
	require.NotNil(t, logs[1].OldVersionID)

	stats := o.Statistics()
	assert.Equal(t, 2, stats.TotalWorkflows)
	assert.Equal(t, 2, stats.SuccessfulWorkflows)
}

func TestProcessFullWorkflowValidationFailureMarksEventFailed(t *testing.T) {
	t.Parallel()

	docs := invalidDocuments{document.NewProcessor(document.Deps{})}
	o, store := newPipeline(t, &fakeFeeds{}, docs)

	result := o.ProcessFullWorkflow(context.Background(), domain.FeedItem{
		GUID:  "g-2",
		Title: "Rinnovo CCNL commercio firmato",
	})
	assert.False(t, result.Success)
	assert.False(t, result.VersionCreated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "negative")

	event, ok := store.Event(result.EventID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, event.Status)
	assert.Contains(t, event.ErrorMessage, "negative")
	assert.Empty(t, store.ChangeLogs())
}

func TestProcessFullWorkflowFailsWithoutSector(t *testing.T) {
	t.Parallel()

	o, store := newPipeline(t, &fakeFeeds{}, nil)
	result := o.ProcessFullWorkflow(context.Background(), domain.FeedItem{
		GUID:  "g-3",
		Title: "Rinnovo del contratto collettivo firmato: accordo sui minimi",
	})

	assert.False(t, result.Success)
	event, ok := store.Event(result.EventID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, event.Status)
}

func TestProcessFullWorkflowCancellationLeavesVersionsUntouched(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	for _, link := range []string{server.URL, ""} {
		o, store := newPipeline(t, &fakeFeeds{}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := o.ProcessFullWorkflow(ctx, domain.FeedItem{
			GUID:        "g-cancel",
			Title:       "Rinnovo CCNL commercio firmato",
			Description: "Aumento del 5% dei minimi retributivi",
			Link:        link,
		})
		assert.False(t, result.Success, "link %q", link)
		assert.False(t, result.VersionCreated, "link %q", link)
		assert.Zero(t, result.NotificationsSent, "link %q", link)

		versions, err := store.List(context.Background(), "ccnl-commercio")
		require.NoError(t, err)
		assert.Empty(t, versions, "link %q", link)
		assert.Empty(t, store.ChangeLogs(), "link %q", link)

		event, ok := store.Event(result.EventID)
		require.True(t, ok)
		assert.Equal(t, domain.StatusFailed, event.Status)
		assert.Contains(t, event.ErrorMessage, context.Canceled.Error())
	}
}

func TestProcessFullWorkflowPanicFailsInflightEvent(t *testing.T) {
	t.Parallel()

	docs := panickyDocuments{document.NewProcessor(document.Deps{})}
	o, store := newPipeline(t, &fakeFeeds{}, docs)

	result := o.ProcessFullWorkflow(context.Background(), domain.FeedItem{
		GUID:  "g-panic",
		Title: "Rinnovo CCNL commercio firmato",
	})
	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "validator exploded")

	event, ok := store.Event(result.EventID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, event.Status)
	assert.Contains(t, event.ErrorMessage, "validator exploded")
	require.NotNil(t, event.ProcessedAt)

	stats := o.Statistics()
	assert.Equal(t, 1, stats.FailedWorkflows)
}

func TestRunMonitoringCycleSkipsItemsAfterCancellation(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{items: items(4)}
	cls := &slowClassifier{}
	o := NewOrchestrator(OrchestratorDeps{Feeds: feeds, Classifier: cls, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycle := o.RunMonitoringCycle(ctx)
	assert.Equal(t, 4, cycle.ItemsFetched)
	assert.Equal(t, 4, cycle.Skipped)
	assert.Zero(t, cycle.Total)
	assert.Empty(t, cycle.Results)
	assert.Zero(t, cls.peak.Load())
	assert.Zero(t, feeds.markedCount())
}

func TestRunMonitoringCycleRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{items: items(12)}
	cls := &slowClassifier{}
	o := NewOrchestrator(OrchestratorDeps{Feeds: feeds, Classifier: cls, Concurrency: 5})

	cycle := o.RunMonitoringCycle(context.Background())

	require.Len(t, cycle.Results, 12)
	assert.Equal(t, 12, cycle.Total)
	assert.Equal(t, 12, cycle.Successful)
	assert.LessOrEqual(t, cls.peak.Load(), int32(5))
	assert.Equal(t, 12, feeds.markedCount())
	for _, r := range cycle.Results {
		assert.Equal(t, "no update detected", r.Message)
	}
}

func TestRunMonitoringCycleContainsPanics(t *testing.T) {
	t.Parallel()

	feeds := &fakeFeeds{items: items(6)}
	o := NewOrchestrator(OrchestratorDeps{Feeds: feeds, Classifier: &slowClassifier{panicOn: "item-03"}})

	cycle := o.RunMonitoringCycle(context.Background())

	require.Len(t, cycle.Results, 6)
	assert.Equal(t, 5, cycle.Successful)
	assert.Equal(t, 1, cycle.Failed)
	assert.False(t, cycle.Results[3].Success)
	assert.Contains(t, cycle.Results[3].Errors[0], "classifier exploded")
	assert.Equal(t, 5, feeds.markedCount())

	stats := o.Statistics()
	assert.Equal(t, 6, stats.TotalWorkflows)
	assert.Equal(t, 1, stats.FailedWorkflows)
	assert.False(t, stats.LastCycleAt.IsZero())
}

func TestHealthCheckAndsComponents(t *testing.T) {
	t.Parallel()

	o, _ := newPipeline(t, &fakeFeeds{healthy: true}, nil)
	report := o.HealthCheck(context.Background())
	assert.True(t, report.Healthy, report.Components)
	assert.Len(t, report.Components, 5)

	o, _ = newPipeline(t, &fakeFeeds{healthy: false}, nil)
	report = o.HealthCheck(context.Background())
	assert.False(t, report.Healthy)
	assert.False(t, report.Components["feed_ingestor"])
	assert.True(t, report.Components["version_manager"])
}

func TestSectorResolver(t *testing.T) {
	t.Parallel()

	id, err := SectorResolver{}.ResolveAgreement(context.Background(), "edilizia", domain.FeedItem{})
	require.NoError(t, err)
	assert.Equal(t, "ccnl-edilizia", id)

	_, err = SectorResolver{}.ResolveAgreement(context.Background(), "", domain.FeedItem{})
	assert.Error(t, err)
}
