package ports

import (
	"context"
	"io"
	"time"

	"CCNLMonitor/internal/domain"
)

// SemanticClassifier is the optional external classification capability.
type SemanticClassifier interface {
	Classify(ctx context.Context, item domain.FeedItem) (domain.SemanticResult, error)
}

// SeenStore remembers feed GUIDs across monitoring cycles.
type SeenStore interface {
	Seen(ctx context.Context, guid string) (bool, error)
	MarkSeen(ctx context.Context, guid string) error
}

// DocumentArchive keeps a copy of fetched supporting documents.
type DocumentArchive interface {
	Store(ctx context.Context, key, contentType string, body io.Reader) error
}

// DocumentParser extracts figures from one family of document formats.
type DocumentParser interface {
	Name() string
	ContentTypes() []string
	Parse(ctx context.Context, body []byte) (domain.ExtractedData, error)
}

// EventRepository is the persistence boundary for events, change logs and metrics.
type EventRepository interface {
	SaveEvent(ctx context.Context, event domain.UpdateEvent) error
	SaveChangeLog(ctx context.Context, log domain.ChangeLog) error
	SaveMetrics(ctx context.Context, metrics domain.CycleMetrics) error
}

// VersionStore persists agreement versions. CreateCurrent and SetCurrent must
// demote the previous current version and promote the target as one atomic step.
type VersionStore interface {
	CreateCurrent(ctx context.Context, version domain.AgreementVersion) error
	SetCurrent(ctx context.Context, agreementID, versionID string) error
	Get(ctx context.Context, versionID string) (domain.AgreementVersion, error)
	List(ctx context.Context, agreementID string) ([]domain.AgreementVersion, error)
	Ping(ctx context.Context) error
}

// ChannelGateway hands a rendered notification to one delivery channel.
type ChannelGateway interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, n domain.Notification, recipients []string) (int, error)
}

// SubscriberDirectory resolves who follows a sector.
type SubscriberDirectory interface {
	SubscribersForSector(ctx context.Context, sector string) ([]string, error)
}

// AgreementResolver maps a classified update to the agreement it concerns.
type AgreementResolver interface {
	ResolveAgreement(ctx context.Context, sector string, item domain.FeedItem) (string, error)
}

// Scheduler controls when monitoring cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
