package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"CCNLMonitor/internal/document"
	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const systemAuthor = "system"

// Analyzer scores the change between two versions.
type Analyzer interface {
	AnalyzeChanges(old *domain.AgreementVersion, next domain.AgreementVersion) domain.ChangeSet
	CalculateSignificanceScore(cs domain.ChangeSet) float64
	GenerateChangeSummary(cs domain.ChangeSet) string
}

// Deps wires the manager collaborators.
type Deps struct {
	Store    ports.VersionStore
	Analyzer Analyzer
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Manager creates, compares and rolls back agreement versions while keeping
// exactly one current version per agreement.
type Manager struct {
	store    ports.VersionStore
	analyzer Analyzer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	locks    sync.Map
}

// NewManager builds a manager.
func NewManager(deps Deps) *Manager {
	m := &Manager{
		store:    deps.Store,
		analyzer: deps.Analyzer,
		logger:   deps.Logger,
		now:      deps.Now,
		newID:    deps.NewID,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

// CreateVersion validates the payload and stores it as the new current version.
func (m *Manager) CreateVersion(ctx context.Context, agreementID string, data domain.VersionData) (domain.AgreementVersion, error) {
	if problems := requiredFields(agreementID, data); len(problems) > 0 {
		return domain.AgreementVersion{}, &domain.ValidationError{Problems: problems}
	}
	if err := document.Validate(document.FiguresFromVersion(data)).Err(); err != nil {
		return domain.AgreementVersion{}, err
	}

	version := domain.AgreementVersion{
		ID:                m.newID(),
		AgreementID:       agreementID,
		VersionNumber:     data.VersionNumber,
		EffectiveDate:     data.EffectiveDate,
		ExpiryDate:        data.ExpiryDate,
		SignedDate:        data.SignedDate,
		DocumentURL:       data.DocumentURL,
		SalaryData:        orEmpty(data.SalaryData).Clone(),
		WorkingConditions: orEmpty(data.WorkingConditions).Clone(),
		LeaveProvisions:   orEmpty(data.LeaveProvisions).Clone(),
		OtherBenefits:     orEmpty(data.OtherBenefits).Clone(),
		IsCurrent:         true,
		CreatedAt:         m.now(),
	}

	unlock := m.lock(agreementID)
	defer unlock()

	if err := m.store.CreateCurrent(ctx, version); err != nil {
		return domain.AgreementVersion{}, fmt.Errorf("store version: %w", err)
	}

	m.debug("version created", "agreement", agreementID, "version", version.ID, "number", version.VersionNumber)
	return version, nil
}

// GetCurrentVersion returns the current version. When the store holds more
// than one current version the most recently created one wins.
func (m *Manager) GetCurrentVersion(ctx context.Context, agreementID string) (domain.AgreementVersion, error) {
	versions, err := m.store.List(ctx, agreementID)
	if err != nil {
		return domain.AgreementVersion{}, fmt.Errorf("list versions: %w", err)
	}

	var (
		current domain.AgreementVersion
		found   int
	)
	for _, v := range versions {
		if !v.IsCurrent {
			continue
		}
		found++
		if found == 1 || v.CreatedAt.After(current.CreatedAt) {
			current = v
		}
	}

	switch found {
	case 0:
		return domain.AgreementVersion{}, fmt.Errorf("current version of %s: %w", agreementID, domain.ErrNotFound)
	case 1:
	default:
		m.warn("multiple current versions", "agreement", agreementID, "count", found, "chosen", current.ID)
	}
	return current, nil
}

// GetVersionHistory returns every version ordered by version number, newest first.
func (m *Manager) GetVersionHistory(ctx context.Context, agreementID string) ([]domain.AgreementVersion, error) {
	versions, err := m.store.List(ctx, agreementID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		if versions[i].VersionNumber != versions[j].VersionNumber {
			return versions[i].VersionNumber > versions[j].VersionNumber
		}
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// RollbackToVersion makes an older version current again.
func (m *Manager) RollbackToVersion(ctx context.Context, agreementID, versionID string) (domain.AgreementVersion, error) {
	target, err := m.store.Get(ctx, versionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AgreementVersion{}, &domain.ConflictError{AgreementID: agreementID, VersionID: versionID, Reason: "version does not exist"}
		}
		return domain.AgreementVersion{}, fmt.Errorf("load version: %w", err)
	}
	if target.AgreementID != agreementID {
		return domain.AgreementVersion{}, &domain.ConflictError{AgreementID: agreementID, VersionID: versionID, Reason: "version belongs to another agreement"}
	}

	unlock := m.lock(agreementID)
	defer unlock()

	if err := m.store.SetCurrent(ctx, agreementID, versionID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AgreementVersion{}, &domain.ConflictError{AgreementID: agreementID, VersionID: versionID, Reason: "version does not exist"}
		}
		return domain.AgreementVersion{}, fmt.Errorf("promote version: %w", err)
	}

	target.IsCurrent = true
	m.debug("version rolled back", "agreement", agreementID, "version", versionID)
	return target, nil
}

// CompareVersions diffs the four content sections of two versions.
func (m *Manager) CompareVersions(old, next domain.AgreementVersion) domain.VersionDiff {
	return Compare(old, next)
}

// CreateChangeLog describes the move from old to next. old is nil for the first version.
func (m *Manager) CreateChangeLog(old *domain.AgreementVersion, next domain.AgreementVersion, changeType string) domain.ChangeLog {
	var prev domain.AgreementVersion
	var oldID *string
	if old != nil {
		prev = *old
		id := old.ID
		oldID = &id
	}

	entry := domain.ChangeLog{
		ID:              m.newID(),
		AgreementID:     next.AgreementID,
		OldVersionID:    oldID,
		NewVersionID:    next.ID,
		ChangeType:      changeType,
		DetailedChanges: Compare(prev, next),
		CreatedBy:       systemAuthor,
		CreatedAt:       m.now(),
	}

	if m.analyzer != nil {
		cs := m.analyzer.AnalyzeChanges(old, next)
		entry.Analysis = cs
		entry.ChangesCount = cs.Count()
		entry.SignificanceScore = m.analyzer.CalculateSignificanceScore(cs)
		entry.Summary = m.analyzer.GenerateChangeSummary(cs)
	} else {
		for _, d := range entry.DetailedChanges {
			entry.ChangesCount += d.Count()
		}
	}
	return entry
}

// Healthy reports whether the version store answers.
func (m *Manager) Healthy(ctx context.Context) bool {
	return m.store.Ping(ctx) == nil
}

func (m *Manager) lock(agreementID string) func() {
	mu, _ := m.locks.LoadOrStore(agreementID, &sync.Mutex{})
	l := mu.(*sync.Mutex)
	l.Lock()
	return l.Unlock
}

func requiredFields(agreementID string, data domain.VersionData) []string {
	var problems []string
	if agreementID == "" {
		problems = append(problems, "agreement id is required")
	}
	if data.VersionNumber <= 0 {
		problems = append(problems, "version number is required")
	}
	if data.EffectiveDate.IsZero() {
		problems = append(problems, "effective date is required")
	}
	return problems
}

func orEmpty(s domain.Section) domain.Section {
	if s == nil {
		return domain.Section{}
	}
	return s
}

func (m *Manager) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *Manager) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
