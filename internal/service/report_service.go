package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"custquery/internal/customers"
	"custquery/internal/domain"
	"custquery/internal/query"
	"custquery/internal/source"
	"custquery/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Report Service: saved reports, their runs and their triggers
// ─────────────────────────────────────────────────────────────

// ErrAlreadyRunning is returned when a report is started while a run of the
// same report is still in flight.
var ErrAlreadyRunning = errors.New("report is already running")

// Options tunes a ReportService. Zero values select the defaults.
type Options struct {
	RunTimeout    time.Duration // per-run deadline, default 5m
	WatchDebounce time.Duration // quiet period after a file event, default 500ms
	RunLogLimit   int           // run logs returned by ListRunLogs, default 50
}

func (o Options) withDefaults() Options {
	if o.RunTimeout <= 0 {
		o.RunTimeout = 5 * time.Minute
	}
	if o.WatchDebounce <= 0 {
		o.WatchDebounce = 500 * time.Millisecond
	}
	if o.RunLogLimit <= 0 {
		o.RunLogLimit = 50
	}
	return o
}

// ReportService manages saved reports, runs them on demand and keeps the
// cron schedules and file watchers of triggered reports.
type ReportService struct {
	store   *storage.ReportStore
	emitter EventEmitter
	logger  *zap.Logger
	opts    Options
	running runningGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewReportService creates a ReportService ready for use.
func NewReportService(store *storage.ReportStore, emitter EventEmitter, logger *zap.Logger, opts Options) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	return &ReportService{
		store:   store,
		emitter: emitter,
		logger:  logger.Named("reports"),
		opts:    opts.withDefaults(),
	}
}

// ── Report CRUD ────────────────────────────────────────────

// ReportInput is the user-editable part of a report.
type ReportInput struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	SourceType    string          `json:"sourceType"`
	SourceConfig  map[string]any  `json:"sourceConfig"`
	Criteria      domain.Criteria `json:"criteria"`
	OrderBy       string          `json:"orderBy"`
	Direction     string          `json:"direction"`
	Output        string          `json:"output"`
	TriggerType   string          `json:"triggerType"`
	TriggerConfig string          `json:"triggerConfig"`
	Enabled       bool            `json:"enabled"`
}

func (in ReportInput) apply(r *domain.Report) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: report name is required", query.ErrInvalidInput)
	}
	if _, err := source.Lookup(in.SourceType); err != nil {
		return err
	}
	dir, err := query.ParseDirection(in.Direction)
	if err != nil {
		return err
	}
	if _, err := customers.Ordering(in.OrderBy, dir); err != nil {
		return err
	}

	output := domain.ReportOutput(in.Output)
	switch output {
	case "":
		output = domain.ReportOutputRecords
	case domain.ReportOutputRecords, domain.ReportOutputNames:
	default:
		return fmt.Errorf("%w: unknown output %q", query.ErrInvalidInput, in.Output)
	}

	trigger := domain.TriggerType(in.TriggerType)
	switch trigger {
	case "":
		trigger = domain.TriggerManual
	case domain.TriggerManual, domain.TriggerFileWatch:
	case domain.TriggerSchedule:
		if _, err := cron.ParseStandard(in.TriggerConfig); err != nil {
			return fmt.Errorf("%w: cron expression %q: %v", query.ErrInvalidInput, in.TriggerConfig, err)
		}
	default:
		return fmt.Errorf("%w: unknown trigger %q", query.ErrInvalidInput, in.TriggerType)
	}

	r.Name = strings.TrimSpace(in.Name)
	r.Description = in.Description
	r.SourceType = in.SourceType
	r.SourceConfig = storableSourceConfig(in.SourceConfig)
	r.Criteria = in.Criteria
	r.OrderBy = in.OrderBy
	r.Direction = dir.String()
	r.Output = output
	r.TriggerType = trigger
	r.TriggerConfig = in.TriggerConfig
	r.Enabled = in.Enabled
	return nil
}

// storableSourceConfig drops an inline password. A saved report resolves it
// at run time from passwordSecret or CUSTQUERY_DB_PASSWORD instead.
func storableSourceConfig(cfg map[string]any) map[string]any {
	if _, ok := cfg["password"]; !ok {
		return cfg
	}
	out := maps.Clone(cfg)
	delete(out, "password")
	return out
}

func (s *ReportService) CreateReport(ctx context.Context, input ReportInput) (*domain.Report, error) {
	r := &domain.Report{}
	if err := input.apply(r); err != nil {
		return nil, err
	}
	if err := s.store.Create(r); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.logger.Info("report created", zap.String("id", r.ID), zap.String("name", r.Name))
	s.RestartWatchers(ctx)
	return r, nil
}

func (s *ReportService) GetReport(id string) (*domain.Report, error) {
	return s.store.Get(id)
}

// ResolveReport finds a report by id, then by name.
func (s *ReportService) ResolveReport(idOrName string) (*domain.Report, error) {
	r, err := s.store.Get(idOrName)
	if errors.Is(err, storage.ErrNotFound) {
		return s.store.GetByName(idOrName)
	}
	return r, err
}

func (s *ReportService) ListReports() ([]domain.Report, error) {
	return s.store.List()
}

func (s *ReportService) UpdateReport(ctx context.Context, id string, input ReportInput) error {
	r, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if err := input.apply(r); err != nil {
		return err
	}
	if err := s.store.Update(r); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *ReportService) DeleteReport(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

// ListRunLogs returns the latest run logs of a report.
func (s *ReportService) ListRunLogs(id string) ([]domain.ReportRunLog, error) {
	return s.store.ListRunLogs(id, s.opts.RunLogLimit)
}

// ListSources returns the available record source descriptors.
func (s *ReportService) ListSources() []source.Spec {
	return source.List()
}

// ── Run ────────────────────────────────────────────────────

// RunReport executes a report synchronously, records a run log and emits
// EventReportCompleted.
func (s *ReportService) RunReport(ctx context.Context, id string) (*domain.ReportResult, error) {
	if !s.running.TryLock(id) {
		return nil, fmt.Errorf("report %s: %w", id, ErrAlreadyRunning)
	}
	defer s.running.Unlock(id)

	r, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatus(id, domain.StatusRunning, ""); err != nil {
		s.logger.Warn("update status", zap.String("id", id), zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := customers.RunReport(runCtx, r, s.logger.With(zap.String("report", r.Name)))

	runLog := &domain.ReportRunLog{
		ReportID:    id,
		StartedAt:   start,
		FinishedAt:  time.Now(),
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsMatched: result.RowsMatched,
		Error:       result.Error,
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		s.logger.Warn("write run log", zap.String("id", id), zap.Error(err))
	}
	if err := s.store.UpdateStatus(id, result.Status, result.Error); err != nil {
		s.logger.Warn("update status", zap.String("id", id), zap.Error(err))
	}

	s.emitter.Emit(ctx, EventReportCompleted, result)
	return result, runErr
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher and cron scheduler and
// rebuilds them from the enabled triggered reports.
func (s *ReportService) RestartWatchers(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()

	reports, err := s.store.ListTriggered()
	if err != nil {
		s.logger.Error("list triggered reports", zap.Error(err))
		return
	}

	s.startCronLocked(ctx, reports)
	s.startFileWatchLocked(ctx, reports)
}

func (s *ReportService) startCronLocked(ctx context.Context, reports []domain.Report) {
	cronLog := cronLogger{s.logger.Named("cron").Sugar()}
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog)))

	scheduled := 0
	for _, r := range reports {
		if r.TriggerType != domain.TriggerSchedule || r.TriggerConfig == "" {
			continue
		}
		id, name := r.ID, r.Name
		_, err := c.AddFunc(r.TriggerConfig, func() {
			s.logger.Info("scheduled run", zap.String("report", name))
			s.runTriggered(ctx, id)
		})
		if err != nil {
			s.logger.Warn("invalid cron expression",
				zap.String("report", name), zap.String("expr", r.TriggerConfig), zap.Error(err))
			continue
		}
		scheduled++
	}
	if scheduled == 0 {
		return
	}
	c.Start()
	s.cronSched = c
	s.logger.Info("cron started", zap.Int("reports", scheduled))
}

// watchPath is the file a file_watch report reacts to: the trigger config,
// or the source's own file when the trigger config is empty.
func watchPath(r domain.Report) string {
	if r.TriggerConfig != "" {
		return r.TriggerConfig
	}
	if p, ok := r.SourceConfig["filePath"].(string); ok {
		return p
	}
	return ""
}

func (s *ReportService) startFileWatchLocked(ctx context.Context, reports []domain.Report) {
	pathToReports := make(map[string][]string)
	for _, r := range reports {
		if r.TriggerType != domain.TriggerFileWatch {
			continue
		}
		p := watchPath(r)
		if p == "" {
			s.logger.Warn("file_watch report without a path", zap.String("report", r.Name))
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			s.logger.Warn("bad watch path", zap.String("path", p), zap.Error(err))
			continue
		}
		pathToReports[abs] = append(pathToReports[abs], r.ID)
	}
	if len(pathToReports) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Error("create file watcher", zap.Error(err))
		return
	}

	// Watch directories so editors that replace files keep triggering.
	watchedDirs := make(map[string]bool)
	for p := range pathToReports {
		dir := filepath.Dir(p)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("watch dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.watcher = watcher
	s.watchCancel = cancel
	s.watchDone = done

	go s.watchLoop(ctx, watchCtx, watcher, pathToReports, done)
	s.logger.Info("watching files", zap.Int("files", len(pathToReports)))
}

func (s *ReportService) watchLoop(ctx, watchCtx context.Context, watcher *fsnotify.Watcher, pathToReports map[string][]string, done chan struct{}) {
	defer close(done)

	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			ids, ok := pathToReports[abs]
			if !ok {
				continue
			}
			if t, exists := timers[abs]; exists {
				t.Stop()
			}
			timers[abs] = time.AfterFunc(s.opts.WatchDebounce, func() {
				if watchCtx.Err() != nil {
					return
				}
				s.logger.Info("file changed", zap.String("path", abs), zap.Int("reports", len(ids)))
				for _, id := range ids {
					s.runTriggered(ctx, id)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// runTriggered runs a report from a trigger. Failures are logged, and a
// run that is already in flight is skipped.
func (s *ReportService) runTriggered(ctx context.Context, id string) {
	if _, err := s.RunReport(ctx, id); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.logger.Debug("skipping trigger, run in flight", zap.String("id", id))
			return
		}
		s.logger.Warn("triggered run failed", zap.String("id", id), zap.Error(err))
	}
}

// WaitRunning blocks until all running reports finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ReportService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers. Runs already in flight are
// not interrupted; use WaitRunning to wait for them.
func (s *ReportService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchersLocked()
}

func (s *ReportService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.watchDone != nil {
		<-s.watchDone
		s.watchDone = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
