package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

const uniqueViolation = "23505"

// Schema creates the tables used by PostgresRepository.
const Schema = `
CREATE TABLE IF NOT EXISTS agreement_versions (
    id                 TEXT PRIMARY KEY,
    agreement_id       TEXT NOT NULL,
    version_number     INTEGER NOT NULL,
    effective_date     DATE NOT NULL,
    expiry_date        DATE,
    signed_date        DATE,
    document_url       TEXT NOT NULL DEFAULT '',
    salary_data        JSONB NOT NULL DEFAULT '{}',
    working_conditions JSONB NOT NULL DEFAULT '{}',
    leave_provisions   JSONB NOT NULL DEFAULT '{}',
    other_benefits     JSONB NOT NULL DEFAULT '{}',
    is_current         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS agreement_versions_one_current
    ON agreement_versions (agreement_id) WHERE is_current;

CREATE TABLE IF NOT EXISTS update_events (
    id              TEXT PRIMARY KEY,
    agreement_id    TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL,
    detected_at     TIMESTAMPTZ NOT NULL,
    title           TEXT NOT NULL,
    url             TEXT NOT NULL DEFAULT '',
    content_summary TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL,
    status          TEXT NOT NULL,
    processed_at    TIMESTAMPTZ,
    error_message   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS change_logs (
    id                 TEXT PRIMARY KEY,
    agreement_id       TEXT NOT NULL,
    old_version_id     TEXT,
    new_version_id     TEXT NOT NULL,
    change_type        TEXT NOT NULL,
    summary            TEXT NOT NULL,
    detailed_changes   JSONB NOT NULL,
    analysis           JSONB NOT NULL,
    significance_score DOUBLE PRECISION NOT NULL,
    changes_count      INTEGER NOT NULL,
    created_by         TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS monitoring_metrics (
    recorded_at         TIMESTAMPTZ NOT NULL,
    items_fetched       INTEGER NOT NULL,
    successful          INTEGER NOT NULL,
    failed              INTEGER NOT NULL,
    avg_processing_ms   BIGINT NOT NULL,
    active_sources      INTEGER NOT NULL
);`

var versionColumns = []string{
	"id", "agreement_id", "version_number", "effective_date", "expiry_date", "signed_date",
	"document_url", "salary_data", "working_conditions", "leave_provisions", "other_benefits",
	"is_current", "created_at",
}

// PostgresRepository persists versions, events, change logs and metrics into Postgres.
type PostgresRepository struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

var (
	_ ports.VersionStore    = (*PostgresRepository)(nil)
	_ ports.EventRepository = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// OpenPostgres opens a lib/pq connection pool and checks it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates missing tables.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateCurrent demotes the agreement's current version and inserts the new
// one as current inside a single transaction.
func (r *PostgresRepository) CreateCurrent(ctx context.Context, version domain.AgreementVersion) error {
	sections, err := marshalSections(version)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.demote(ctx, tx, version.AgreementID); err != nil {
			return err
		}

		query, args, err := r.psql.Insert("agreement_versions").
			Columns(versionColumns...).
			Values(
				version.ID, version.AgreementID, version.VersionNumber, version.EffectiveDate,
				nullTime(version.ExpiryDate), nullTime(version.SignedDate), version.DocumentURL,
				sections[0], sections[1], sections[2], sections[3],
				true, version.CreatedAt,
			).ToSql()
		if err != nil {
			return fmt.Errorf("build insert version: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return &domain.ConflictError{AgreementID: version.AgreementID, VersionID: version.ID, Reason: "version already exists"}
			}
			return fmt.Errorf("insert version: %w", err)
		}
		return nil
	})
}

// SetCurrent promotes an existing version and demotes the previous current one.
func (r *PostgresRepository) SetCurrent(ctx context.Context, agreementID, versionID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.psql.Select("agreement_id").
			From("agreement_versions").
			Where(sq.Eq{"id": versionID}).
			Suffix("FOR UPDATE").
			ToSql()
		if err != nil {
			return fmt.Errorf("build lock version: %w", err)
		}

		var owner string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&owner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("version %s of %s: %w", versionID, agreementID, domain.ErrNotFound)
			}
			return fmt.Errorf("lock version: %w", err)
		}
		if owner != agreementID {
			return fmt.Errorf("version %s of %s: %w", versionID, agreementID, domain.ErrNotFound)
		}

		if err := r.demote(ctx, tx, agreementID); err != nil {
			return err
		}

		query, args, err = r.psql.Update("agreement_versions").
			Set("is_current", true).
			Where(sq.Eq{"id": versionID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build promote: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("promote version: %w", err)
		}
		return nil
	})
}

// Get loads one version by id.
func (r *PostgresRepository) Get(ctx context.Context, versionID string) (domain.AgreementVersion, error) {
	query, args, err := r.psql.Select(versionColumns...).
		From("agreement_versions").
		Where(sq.Eq{"id": versionID}).
		ToSql()
	if err != nil {
		return domain.AgreementVersion{}, fmt.Errorf("build get version: %w", err)
	}

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AgreementVersion{}, fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
		}
		return domain.AgreementVersion{}, err
	}
	return v, nil
}

// List returns every version of an agreement, newest version first.
func (r *PostgresRepository) List(ctx context.Context, agreementID string) ([]domain.AgreementVersion, error) {
	query, args, err := r.psql.Select(versionColumns...).
		From("agreement_versions").
		Where(sq.Eq{"agreement_id": agreementID}).
		OrderBy("version_number DESC", "created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list versions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}

	var out []domain.AgreementVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, v)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return out, nil
}

// Ping checks the connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SaveEvent upserts the event snapshot.
func (r *PostgresRepository) SaveEvent(ctx context.Context, event domain.UpdateEvent) error {
	query, args, err := r.psql.Insert("update_events").
		Columns("id", "agreement_id", "source", "detected_at", "title", "url",
			"content_summary", "confidence", "status", "processed_at", "error_message").
		Values(event.ID, event.AgreementID, event.Source, event.DetectedAt, event.Title, event.URL,
			event.ContentSummary, event.Confidence, string(event.Status), nullTime(event.ProcessedAt), event.ErrorMessage).
		Suffix(`ON CONFLICT (id) DO UPDATE
              SET agreement_id = EXCLUDED.agreement_id,
                  status = EXCLUDED.status,
                  processed_at = EXCLUDED.processed_at,
                  error_message = EXCLUDED.error_message`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert event: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// SaveChangeLog inserts a change-log entry.
func (r *PostgresRepository) SaveChangeLog(ctx context.Context, entry domain.ChangeLog) error {
	detailed, err := json.Marshal(entry.DetailedChanges)
	if err != nil {
		return fmt.Errorf("marshal detailed changes: %w", err)
	}
	analysis, err := json.Marshal(entry.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}

	var oldVersion sql.NullString
	if entry.OldVersionID != nil {
		oldVersion = sql.NullString{String: *entry.OldVersionID, Valid: true}
	}

	query, args, err := r.psql.Insert("change_logs").
		Columns("id", "agreement_id", "old_version_id", "new_version_id", "change_type", "summary",
			"detailed_changes", "analysis", "significance_score", "changes_count", "created_by", "created_at").
		Values(entry.ID, entry.AgreementID, oldVersion, entry.NewVersionID, entry.ChangeType, entry.Summary,
			detailed, analysis, entry.SignificanceScore, entry.ChangesCount, entry.CreatedBy, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert change log: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

// SaveMetrics appends one cycle's metrics.
func (r *PostgresRepository) SaveMetrics(ctx context.Context, m domain.CycleMetrics) error {
	query, args, err := r.psql.Insert("monitoring_metrics").
		Columns("recorded_at", "items_fetched", "successful", "failed", "avg_processing_ms", "active_sources").
		Values(m.RecordedAt, m.ItemsFetched, m.Successful, m.Failed, m.AverageProcessingTime.Milliseconds(), m.ActiveSources).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert metrics: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

func (r *PostgresRepository) demote(ctx context.Context, tx *sql.Tx, agreementID string) error {
	query, args, err := r.psql.Update("agreement_versions").
		Set("is_current", false).
		Where(sq.Eq{"agreement_id": agreementID, "is_current": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build demote: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("demote current version: %w", err)
	}
	return nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (domain.AgreementVersion, error) {
	var (
		v                             domain.AgreementVersion
		expiry, signed                sql.NullTime
		salary, working, leave, other []byte
	)
	err := row.Scan(&v.ID, &v.AgreementID, &v.VersionNumber, &v.EffectiveDate, &expiry, &signed,
		&v.DocumentURL, &salary, &working, &leave, &other, &v.IsCurrent, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, err
		}
		return v, fmt.Errorf("scan version: %w", err)
	}

	v.ExpiryDate = timePtr(expiry)
	v.SignedDate = timePtr(signed)
	for _, target := range []struct {
		raw []byte
		dst *domain.Section
	}{
		{salary, &v.SalaryData},
		{working, &v.WorkingConditions},
		{leave, &v.LeaveProvisions},
		{other, &v.OtherBenefits},
	} {
		if len(target.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(target.raw, target.dst); err != nil {
			return v, fmt.Errorf("decode section: %w", err)
		}
	}
	return v, nil
}

func marshalSections(v domain.AgreementVersion) ([4][]byte, error) {
	var out [4][]byte
	for i, c := range domain.Categories {
		section := v.Section(c)
		if section == nil {
			section = domain.Section{}
		}
		raw, err := json.Marshal(section)
		if err != nil {
			return out, fmt.Errorf("marshal %s: %w", c, err)
		}
		out[i] = raw
	}
	return out, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
