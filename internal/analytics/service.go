package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vipul43/analytics-bridge/internal/formatter"
	"github.com/vipul43/analytics-bridge/internal/models"
	"github.com/vipul43/analytics-bridge/internal/zoho"
)

// Runner executes one export job end to end. *zoho.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, view zoho.View, config string) ([]models.RawRecord, *zoho.ExportJob, error)
}

// RunRecorder persists export run outcomes.
type RunRecorder interface {
	Create(ctx context.Context, run models.ExportRun) error
	Finish(ctx context.Context, run models.ExportRun) error
}

// NopRecorder discards runs. It is used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Create(ctx context.Context, run models.ExportRun) error { return nil }
func (NopRecorder) Finish(ctx context.Context, run models.ExportRun) error { return nil }

// Config tunes the service.
type Config struct {
	ExportTimeout time.Duration // 0 leaves the deadline to the caller's context
}

// Service exposes the export entry points used by the HTTP layer.
type Service struct {
	runner        Runner
	runs          RunRecorder
	exportTimeout time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(runner Runner, runs RunRecorder, cfg Config, logger zerolog.Logger) *Service {
	if runs == nil {
		runs = NopRecorder{}
	}
	return &Service{
		runner:        runner,
		runs:          runs,
		exportTimeout: cfg.ExportTimeout,
		logger:        logger.With().Str("component", "analytics").Logger(),
		now:           time.Now,
	}
}

// ExecuteJob exports view with a caller-supplied query configuration.
// An empty config requests plain JSON output.
func (s *Service) ExecuteJob(ctx context.Context, view, config string) ([]models.FormattedRecord, error) {
	v, err := zoho.ParseView(view)
	if err != nil {
		return nil, err
	}
	if config == "" {
		config = DefaultConfig
	}
	return s.execute(ctx, v, config)
}

// ExecuteJobWithCriteria exports view filtered by "field"=value.
func (s *Service) ExecuteJobWithCriteria(ctx context.Context, view, field, value string) ([]models.FormattedRecord, error) {
	v, err := zoho.ParseView(view)
	if err != nil {
		return nil, err
	}
	config, err := QueryConfig{Criteria: FieldEquals(field, value)}.Encode()
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, v, config)
}

// ExecuteJobByView exports view filtered by "view"."field"='value'.
func (s *Service) ExecuteJobByView(ctx context.Context, view, field, value string) ([]models.FormattedRecord, error) {
	v, err := zoho.ParseView(view)
	if err != nil {
		return nil, err
	}
	config, err := QueryConfig{Criteria: QualifiedFieldEquals(view, field, value)}.Encode()
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, v, config)
}

func (s *Service) execute(ctx context.Context, view zoho.View, config string) ([]models.FormattedRecord, error) {
	run := models.ExportRun{
		ID:        uuid.New().String(),
		View:      view.String(),
		Config:    config,
		Status:    models.RunStatusRunning,
		StartedAt: s.now(),
	}
	logger := s.logger.With().Str("run_id", run.ID).Str("view", run.View).Logger()
	logger.Info().Str("config", config).Msg("Starting export")

	if err := s.runs.Create(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record export run")
	}

	if s.exportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.exportTimeout)
		defer cancel()
	}

	rows, job, err := s.runner.Run(ctx, view, config)

	var records []models.FormattedRecord
	if err == nil {
		records, err = formatter.Format(rows)
	}

	s.finish(context.WithoutCancel(ctx), logger, run, job, len(records), err)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) finish(ctx context.Context, logger zerolog.Logger, run models.ExportRun, job *zoho.ExportJob, rows int, runErr error) {
	finishedAt := s.now()
	run.FinishedAt = &finishedAt
	run.RowCount = rows
	run.Status = models.RunStatusCompleted
	if job != nil {
		run.JobID = &job.ID
		run.Polls = job.Polls
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = models.RunStatusFailed
		run.LastError = &msg
		run.RowCount = 0
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Error().Err(runErr)
	}
	event.
		Int("rows", run.RowCount).
		Int("polls", run.Polls).
		Dur("duration", finishedAt.Sub(run.StartedAt)).
		Msg("Export finished")

	if err := s.runs.Finish(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("Failed to record export run outcome")
	}
}
