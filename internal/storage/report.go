package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custquery/internal/domain"
)

// ReportStore persists saved reports and their run logs.
type ReportStore struct {
	db *DB
}

// NewReportStore creates a new ReportStore.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

const reportColumns = `id, name, description, source_type, source_config, criteria, order_by,
	direction, output, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

// ── Report CRUD ────────────────────────────────────────────

func (s *ReportStore) Create(r *domain.Report) error {
	now := time.Now().UTC()
	r.ID = uuid.New().String()
	r.CreatedAt = now
	r.UpdatedAt = now

	srcCfg, criteria, err := encodeReport(r)
	if err != nil {
		return err
	}
	_, err = s.db.conn.Exec(
		`INSERT INTO reports (id, name, description, source_type, source_config, criteria, order_by,
		 direction, output, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.SourceType, srcCfg, criteria, r.OrderBy,
		r.Direction, string(r.Output), string(r.TriggerType), r.TriggerConfig, r.Enabled,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *ReportStore) Get(id string) (*domain.Report, error) {
	r, err := scanReport(s.db.conn.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return r, err
}

// GetByName looks a report up by its unique name.
func (s *ReportStore) GetByName(name string) (*domain.Report, error) {
	r, err := scanReport(s.db.conn.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %q: %w", name, ErrNotFound)
	}
	return r, err
}

func (s *ReportStore) Update(r *domain.Report) error {
	r.UpdatedAt = time.Now().UTC()
	srcCfg, criteria, err := encodeReport(r)
	if err != nil {
		return err
	}
	res, err := s.db.conn.Exec(
		`UPDATE reports SET name=?, description=?, source_type=?, source_config=?, criteria=?,
		 order_by=?, direction=?, output=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=?
		 WHERE id=?`,
		r.Name, r.Description, r.SourceType, srcCfg, criteria,
		r.OrderBy, r.Direction, string(r.Output), string(r.TriggerType), r.TriggerConfig, r.Enabled, r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return requireAffected(res, r.ID)
}

// UpdateStatus records the outcome of the latest run.
func (s *ReportStore) UpdateStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	res, err := s.db.conn.Exec(
		`UPDATE reports SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return requireAffected(res, id)
}

// Delete removes a report and its run logs.
func (s *ReportStore) Delete(id string) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM report_runs WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("delete run logs: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *ReportStore) List() ([]domain.Report, error) {
	return s.list(`SELECT ` + reportColumns + ` FROM reports ORDER BY created_at ASC, name ASC`)
}

// ListTriggered returns the enabled reports with a schedule or file_watch trigger.
func (s *ReportStore) ListTriggered() ([]domain.Report, error) {
	return s.list(`SELECT `+reportColumns+` FROM reports
		WHERE enabled = 1 AND trigger_type IN (?, ?)
		ORDER BY created_at ASC, name ASC`,
		string(domain.TriggerSchedule), string(domain.TriggerFileWatch),
	)
}

func (s *ReportStore) list(q string, args ...any) ([]domain.Report, error) {
	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	r := &domain.Report{}
	var srcCfg, criteria string
	if err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.SourceType, &srcCfg, &criteria, &r.OrderBy,
		&r.Direction, &r.Output, &r.TriggerType, &r.TriggerConfig, &r.Enabled,
		&r.LastRunAt, &r.LastStatus, &r.LastError, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(srcCfg), &r.SourceConfig); err != nil {
		return nil, fmt.Errorf("report %s: source config: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(criteria), &r.Criteria); err != nil {
		return nil, fmt.Errorf("report %s: criteria: %w", r.ID, err)
	}
	return r, nil
}

func encodeReport(r *domain.Report) (srcCfg, criteria string, err error) {
	cfg := r.SourceConfig
	if cfg == nil {
		cfg = map[string]any{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", "", fmt.Errorf("encode source config: %w", err)
	}
	c, err := json.Marshal(r.Criteria)
	if err != nil {
		return "", "", fmt.Errorf("encode criteria: %w", err)
	}
	return string(b), string(c), nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *ReportStore) CreateRunLog(l *domain.ReportRunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO report_runs (id, report_id, started_at, finished_at, status, rows_read, rows_matched, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ReportID, l.StartedAt.UTC(), l.FinishedAt.UTC(), l.Status, l.RowsRead, l.RowsMatched, l.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the newest limit run logs of a report.
func (s *ReportStore) ListRunLogs(reportID string, limit int) ([]domain.ReportRunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, report_id, started_at, finished_at, status, rows_read, rows_matched, error
		 FROM report_runs WHERE report_id = ? ORDER BY started_at DESC LIMIT ?`,
		reportID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.ReportRunLog
	for rows.Next() {
		var l domain.ReportRunLog
		if err := rows.Scan(&l.ID, &l.ReportID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.RowsRead, &l.RowsMatched, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
