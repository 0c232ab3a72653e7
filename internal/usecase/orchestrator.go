package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/notify"
	"CCNLMonitor/internal/ports"
)

const (
	// DefaultConcurrency caps simultaneously processed items in a cycle.
	DefaultConcurrency = 5

	msgNoUpdate       = "no update detected"
	summaryMaxRunes   = 500
	updateTypeRenewal = "rinnovo"
	updateTypeSigning = "firma"
	updateTypeExpiry  = "scadenza"
)

// FeedSource is the FeedIngestor surface used by the orchestrator.
type FeedSource interface {
	FetchAll(ctx context.Context) []domain.FeedItem
	MarkProcessed(ctx context.Context, guid string)
	ActiveSourceCount() int
	Healthy(ctx context.Context) bool
}

// UpdateClassifier is the classification surface used by the orchestrator.
type UpdateClassifier interface {
	Detect(item domain.FeedItem) (domain.Detection, error)
	ClassifyUpdate(ctx context.Context, item domain.FeedItem) domain.Classification
	Healthy(ctx context.Context) bool
}

// DocumentProcessor turns supporting documents into validated version payloads.
type DocumentProcessor interface {
	DownloadAndParse(ctx context.Context, url string) (domain.ParsedDocument, error)
	ExtractFromSummary(title, description string) domain.ExtractedData
	Validate(data domain.ExtractedData) domain.ValidationResult
	PrepareVersionData(parsed domain.ExtractedData, event domain.UpdateEvent) domain.VersionData
	Healthy(ctx context.Context) bool
}

// VersionManager stores versions and builds change logs.
type VersionManager interface {
	GetCurrentVersion(ctx context.Context, agreementID string) (domain.AgreementVersion, error)
	CreateVersion(ctx context.Context, agreementID string, data domain.VersionData) (domain.AgreementVersion, error)
	CreateChangeLog(old *domain.AgreementVersion, next domain.AgreementVersion, changeType string) domain.ChangeLog
	Healthy(ctx context.Context) bool
}

// NotificationDispatcher renders and delivers notifications.
type NotificationDispatcher interface {
	GenerateUpdateNotification(ctx context.Context, data notify.UpdateData) (domain.Notification, error)
	GenerateRenewalNotification(ctx context.Context, data notify.RenewalData) (domain.Notification, error)
	GenerateExpiryWarning(ctx context.Context, data notify.ExpiryData) (domain.Notification, error)
	SendNotification(ctx context.Context, n domain.Notification) domain.DeliverySummary
	Healthy(ctx context.Context) bool
}

// OrchestratorDeps wires all components into the orchestration workflow.
type OrchestratorDeps struct {
	Feeds       FeedSource
	Classifier  UpdateClassifier
	Documents   DocumentProcessor
	Versions    VersionManager
	Notifier    NotificationDispatcher
	Repository  ports.EventRepository
	Resolver    ports.AgreementResolver
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Orchestrator runs the end-to-end workflow for every detected update.
type Orchestrator struct {
	feeds       FeedSource
	classifier  UpdateClassifier
	documents   DocumentProcessor
	versions    VersionManager
	notifier    NotificationDispatcher
	repository  ports.EventRepository
	resolver    ports.AgreementResolver
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string

	statsMu sync.Mutex
	stats   domain.Statistics
}

// NewOrchestrator constructs the orchestration component.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		feeds:       deps.Feeds,
		classifier:  deps.Classifier,
		documents:   deps.Documents,
		versions:    deps.Versions,
		notifier:    deps.Notifier,
		repository:  deps.Repository,
		resolver:    deps.Resolver,
		concurrency: deps.Concurrency,
		logger:      deps.Logger,
		now:         deps.Now,
		newID:       deps.NewID,
	}
	if o.concurrency <= 0 {
		o.concurrency = DefaultConcurrency
	}
	if o.resolver == nil {
		o.resolver = SectorResolver{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o
}

// ProcessFullWorkflow runs detection, versioning and notification for one
// item. It never returns an error: every failure is reported in the result.
func (o *Orchestrator) ProcessFullWorkflow(ctx context.Context, item domain.FeedItem) (result domain.WorkflowResult) {
	start := o.now()
	result.WorkflowID = o.newID()

	// inflight is the event being driven through its lifecycle, once created.
	var inflight *domain.UpdateEvent
	defer func() {
		if r := recover(); r != nil {
			o.warn("workflow panicked", "guid", item.GUID, "panic", r)
			cause := fmt.Errorf("panic: %v", r)
			if inflight != nil && !inflight.Status.Terminal() {
				o.failEvent(ctx, inflight, &result, cause)
			} else {
				result.Success = false
				result.Errors = append(result.Errors, cause.Error())
			}
		}
		result.ProcessingTime = o.now().Sub(start)
		o.record(result)
	}()

	det, err := o.classifier.Detect(item)
	result.Confidence = det.Confidence
	if err != nil {
		if !errors.Is(err, domain.ErrLowConfidence) {
			result.Errors = append(result.Errors, err.Error())
			return result
		}
		result.Success = true
		result.Message = msgNoUpdate
		return result
	}

	cls := o.classifier.ClassifyUpdate(ctx, item)
	result.Confidence = cls.Confidence

	event := domain.UpdateEvent{
		ID:             o.newID(),
		Source:         item.SourceID,
		DetectedAt:     o.now(),
		Title:          item.Title,
		URL:            item.Link,
		ContentSummary: truncate(strings.TrimSpace(item.Description), summaryMaxRunes),
		Confidence:     cls.Confidence,
		Status:         domain.StatusDetected,
	}
	result.EventID = event.ID
	inflight = &event

	agreementID, err := o.resolver.ResolveAgreement(ctx, cls.Sector, item)
	if err != nil {
		o.failEvent(ctx, &event, &result, fmt.Errorf("resolve agreement: %w", err))
		return result
	}
	event.AgreementID = agreementID
	o.saveEvent(ctx, event)

	if err := event.Transition(domain.StatusProcessing, o.now()); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	o.saveEvent(ctx, event)

	data, err := o.extract(ctx, item)
	if err != nil {
		o.failEvent(ctx, &event, &result, fmt.Errorf("extract figures: %w", err))
		return result
	}
	if validation := o.documents.Validate(data); !validation.Valid {
		o.failEvent(ctx, &event, &result, validation.Err())
		return result
	}

	var previous *domain.AgreementVersion
	current, err := o.versions.GetCurrentVersion(ctx, agreementID)
	switch {
	case err == nil:
		previous = &current
	case !errors.Is(err, domain.ErrNotFound):
		o.failEvent(ctx, &event, &result, fmt.Errorf("load current version: %w", err))
		return result
	}

	if err := ctx.Err(); err != nil {
		o.failEvent(ctx, &event, &result, fmt.Errorf("create version: %w", err))
		return result
	}
	created, err := o.versions.CreateVersion(ctx, agreementID, o.documents.PrepareVersionData(data, event))
	if err != nil {
		o.failEvent(ctx, &event, &result, fmt.Errorf("create version: %w", err))
		return result
	}
	result.VersionCreated = true

	changeType := domain.ChangeTypeUpdate
	if previous == nil {
		changeType = domain.ChangeTypeCreation
	}
	entry := o.versions.CreateChangeLog(previous, created, changeType)
	result.ChangesCount = entry.ChangesCount
	if o.repository != nil {
		if err := o.repository.SaveChangeLog(ctx, entry); err != nil {
			o.warn("save change log failed", "agreement", agreementID, "error", err)
		}
	}

	if err := event.Transition(domain.StatusVerified, o.now()); err == nil {
		_ = event.Transition(domain.StatusIntegrated, o.now())
	}
	o.saveEvent(ctx, event)

	if result.ChangesCount > 0 && o.notifier != nil {
		sent, err := o.notify(ctx, cls, item, created, entry)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		result.NotificationsSent = sent
	}

	result.Success = true
	return result
}

// RunMonitoringCycle fetches every feed and processes the items with at most
// the configured number in flight. Results keep the fetch order. Items not yet
// started when ctx is cancelled are skipped.
func (o *Orchestrator) RunMonitoringCycle(ctx context.Context) domain.CycleResult {
	started := o.now()
	items := o.feeds.FetchAll(ctx)

	results := make([]domain.WorkflowResult, len(items))
	sem := make(chan struct{}, o.concurrency)
	var (
		wg         sync.WaitGroup
		dispatched int
	)
dispatch:
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		dispatched++
		wg.Add(1)
		go func(i int, item domain.FeedItem) {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = o.ProcessFullWorkflow(ctx, item)
			if results[i].Success {
				o.feeds.MarkProcessed(ctx, item.GUID)
			}
		}(i, item)
	}
	wg.Wait()
	results = results[:dispatched]

	cycle := domain.CycleResult{
		StartedAt:    started,
		ItemsFetched: len(items),
		Total:        len(results),
		Skipped:      len(items) - dispatched,
		Results:      results,
	}
	if cycle.Skipped > 0 {
		o.warn("monitoring cycle cancelled", "skipped", cycle.Skipped, "error", ctx.Err())
	}
	var total time.Duration
	for _, r := range results {
		if r.Success {
			cycle.Successful++
		} else {
			cycle.Failed++
		}
		total += r.ProcessingTime
	}
	if len(results) > 0 {
		cycle.AverageProcessingTime = total / time.Duration(len(results))
	}
	cycle.Duration = o.now().Sub(started)

	o.statsMu.Lock()
	o.stats.LastCycleAt = started
	o.statsMu.Unlock()

	if o.repository != nil {
		err := o.repository.SaveMetrics(ctx, domain.CycleMetrics{
			RecordedAt:            o.now(),
			ItemsFetched:          cycle.ItemsFetched,
			Successful:            cycle.Successful,
			Failed:                cycle.Failed,
			AverageProcessingTime: cycle.AverageProcessingTime,
			ActiveSources:         o.feeds.ActiveSourceCount(),
		})
		if err != nil {
			o.warn("save metrics failed", "error", err)
		}
	}

	o.info("monitoring cycle finished",
		"items", cycle.Total,
		"successful", cycle.Successful,
		"failed", cycle.Failed,
		"skipped", cycle.Skipped,
		"duration", cycle.Duration,
	)
	return cycle
}

// HealthCheck ANDs the self-reported health of every component.
func (o *Orchestrator) HealthCheck(ctx context.Context) domain.HealthReport {
	report := domain.HealthReport{
		Healthy:    true,
		Components: map[string]bool{},
		CheckedAt:  o.now(),
	}

	checks := map[string]interface{ Healthy(context.Context) bool }{
		"feed_ingestor":      o.feeds,
		"update_classifier":  o.classifier,
		"document_processor": o.documents,
		"version_manager":    o.versions,
	}
	if o.notifier != nil {
		checks["notification_dispatcher"] = o.notifier
	}
	for name, component := range checks {
		ok := component != nil && component.Healthy(ctx)
		report.Components[name] = ok
		report.Healthy = report.Healthy && ok
	}
	return report
}

// Statistics returns a snapshot of the running counters.
func (o *Orchestrator) Statistics() domain.Statistics {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}

func (o *Orchestrator) record(result domain.WorkflowResult) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()

	o.stats.TotalWorkflows++
	if result.Success {
		o.stats.SuccessfulWorkflows++
	} else {
		o.stats.FailedWorkflows++
	}
	n := time.Duration(o.stats.TotalWorkflows)
	o.stats.AverageProcessingTime += (result.ProcessingTime - o.stats.AverageProcessingTime) / n
}

// extract parses the linked document and falls back to the announcement text
// when the document is missing, unreadable or carries no figures. A cancelled
// ctx is returned as an error and never falls back.
func (o *Orchestrator) extract(ctx context.Context, item domain.FeedItem) (domain.ExtractedData, error) {
	if item.Link != "" {
		parsed, err := o.documents.DownloadAndParse(ctx, item.Link)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ExtractedData{}, ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return domain.ExtractedData{}, err
		}
		if err == nil && !parsed.Data.Empty() {
			return parsed.Data, nil
		}
		if err != nil {
			o.debug("document unavailable, using summary", "url", item.Link, "error", err)
		}
	}
	return o.documents.ExtractFromSummary(item.Title, item.Body()), nil
}

func (o *Orchestrator) notify(ctx context.Context, cls domain.Classification, item domain.FeedItem, created domain.AgreementVersion, entry domain.ChangeLog) (int, error) {
	name := agreementName(cls.Sector, item)

	var (
		n   domain.Notification
		err error
	)
	switch {
	case cls.UpdateType == updateTypeRenewal || cls.UpdateType == updateTypeSigning:
		data := notify.RenewalData{
			AgreementID:   created.AgreementID,
			AgreementName: name,
			Sector:        cls.Sector,
			URL:           item.Link,
			EffectiveDate: created.EffectiveDate,
		}
		if created.SignedDate != nil {
			data.SignedDate = *created.SignedDate
		}
		n, err = o.notifier.GenerateRenewalNotification(ctx, data)
	case cls.UpdateType == updateTypeExpiry && created.ExpiryDate != nil:
		n, err = o.notifier.GenerateExpiryWarning(ctx, notify.ExpiryData{
			AgreementID:   created.AgreementID,
			AgreementName: name,
			Sector:        cls.Sector,
			ExpiryDate:    *created.ExpiryDate,
			DaysLeft:      int(created.ExpiryDate.Sub(o.now()).Hours() / 24),
		})
	default:
		n, err = o.notifier.GenerateUpdateNotification(ctx, notify.UpdateData{
			AgreementID:   created.AgreementID,
			AgreementName: name,
			Sector:        cls.Sector,
			UpdateType:    cls.UpdateType,
			Summary:       entry.Summary,
			URL:           item.Link,
			EffectiveDate: created.EffectiveDate,
			SalaryChanges: entry.Analysis.Salary.Increased,
			ChangesCount:  entry.ChangesCount,
			Significance:  entry.SignificanceScore,
		})
	}
	if err != nil {
		return 0, fmt.Errorf("build notification: %w", err)
	}

	summary := o.notifier.SendNotification(ctx, n)
	return summary.Sent, nil
}

func (o *Orchestrator) failEvent(ctx context.Context, event *domain.UpdateEvent, result *domain.WorkflowResult, cause error) {
	result.Success = false
	result.Errors = append(result.Errors, cause.Error())
	if err := event.Fail(cause.Error(), o.now()); err != nil {
		o.warn("event transition rejected", "event", event.ID, "error", err)
	}
	o.saveEvent(ctx, *event)
}

func (o *Orchestrator) saveEvent(ctx context.Context, event domain.UpdateEvent) {
	if o.repository == nil {
		return
	}
	if err := o.repository.SaveEvent(ctx, event); err != nil {
		o.warn("save event failed", "event", event.ID, "error", err)
	}
}

func agreementName(sector string, item domain.FeedItem) string {
	if sector == "" {
		return item.Title
	}
	return "CCNL " + sector
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
