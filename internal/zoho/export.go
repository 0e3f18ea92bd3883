package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vipul43/analytics-bridge/internal/models"
)

const (
	// StatusCompleted is the only status that ends polling successfully.
	StatusCompleted = "JOB COMPLETED"
	// failureMarker appears in every failure status ("JOB FAILED", "JOB FAILED: QUOTA", ...).
	failureMarker = "FAILED"

	DefaultPollInterval = 3 * time.Second
)

// JobState is where an export job is in its lifecycle, as seen by this client.
type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// ExportJob tracks one asynchronous export for the duration of a request.
type ExportJob struct {
	ID          string
	WorkspaceID string
	State       JobState
	Status      string // last raw status reported by the platform
	DownloadURL string
	Polls       int
}

// Doer performs authenticated calls. *Executor implements it.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// OrchestratorConfig controls where jobs are submitted and how they are polled.
type OrchestratorConfig struct {
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int // 0 polls until the job ends or ctx is done
}

// Orchestrator drives export jobs: submit, poll until terminal, download.
type Orchestrator struct {
	exec         Doer
	registry     *Registry
	baseURL      string
	pollInterval time.Duration
	maxPolls     int
	sleep        func(ctx context.Context, d time.Duration) error
	logger       zerolog.Logger
}

// NewOrchestrator creates an orchestrator using exec for every call.
func NewOrchestrator(exec Doer, registry *Registry, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		exec:         exec,
		registry:     registry,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
		sleep:        sleepContext,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run exports view with the given query configuration and returns the raw rows.
// The job is returned whenever it was submitted, even if a later step failed.
func (o *Orchestrator) Run(ctx context.Context, view View, config string) ([]models.RawRecord, *ExportJob, error) {
	binding, err := o.registry.Resolve(view)
	if err != nil {
		return nil, nil, err
	}

	job, err := o.Submit(ctx, binding, config)
	if err != nil {
		return nil, nil, err
	}

	downloadURL, err := o.Poll(ctx, job)
	if err != nil {
		return nil, job, err
	}

	rows, err := o.Download(ctx, downloadURL)
	if err != nil {
		return nil, job, err
	}
	return rows, job, nil
}

// Submit creates an export job for binding.
func (o *Orchestrator) Submit(ctx context.Context, binding ViewBinding, config string) (*ExportJob, error) {
	endpoint := fmt.Sprintf("%s/bulk/workspaces/%s/views/%s/data?%s",
		o.baseURL,
		url.PathEscape(binding.WorkspaceID),
		url.PathEscape(binding.ViewID),
		encodeConfig(config),
	)

	body, err := o.exec.Do(ctx, Request{Op: "create export job", Method: http.MethodGet, URL: endpoint})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			JobID string `json:"jobId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UpstreamError{Op: "create export job", Err: errors.Wrap(err, "failed to parse response")}
	}
	if resp.Data.JobID == "" {
		return nil, &UpstreamError{Op: "create export job", Err: errors.New("response missing jobId")}
	}

	o.logger.Info().
		Str("view", binding.View.String()).
		Str("job_id", resp.Data.JobID).
		Msg("Export job submitted")

	return &ExportJob{
		ID:          resp.Data.JobID,
		WorkspaceID: binding.WorkspaceID,
		State:       JobSubmitted,
	}, nil
}

// Poll queries job status until it completes, fails, or the poll budget runs out.
// It returns the download URL of a completed job.
func (o *Orchestrator) Poll(ctx context.Context, job *ExportJob) (string, error) {
	endpoint := fmt.Sprintf("%s/bulk/workspaces/%s/exportjobs/%s",
		o.baseURL, url.PathEscape(job.WorkspaceID), url.PathEscape(job.ID))

	job.State = JobPolling
	for {
		body, err := o.exec.Do(ctx, Request{Op: "get export job", Method: http.MethodGet, URL: endpoint})
		if err != nil {
			return "", err
		}
		job.Polls++

		var resp struct {
			Data struct {
				JobStatus   string `json:"jobStatus"`
				DownloadURL string `json:"downloadUrl"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", &UpstreamError{Op: "get export job", Err: errors.Wrap(err, "failed to parse response")}
		}
		job.Status = resp.Data.JobStatus

		switch {
		case job.Status == StatusCompleted:
			if resp.Data.DownloadURL == "" {
				return "", &UpstreamError{Op: "get export job", Err: errors.New("completed job has no downloadUrl")}
			}
			job.State = JobCompleted
			job.DownloadURL = resp.Data.DownloadURL
			o.logger.Info().Str("job_id", job.ID).Int("polls", job.Polls).Msg("Export job completed")
			return job.DownloadURL, nil

		case strings.Contains(job.Status, failureMarker):
			job.State = JobFailed
			o.logger.Error().Str("job_id", job.ID).Str("status", job.Status).Msg("Export job failed")
			return "", &JobFailedError{JobID: job.ID, Status: job.Status}
		}

		o.logger.Debug().Str("job_id", job.ID).Str("status", job.Status).Int("poll", job.Polls).Msg("Export job not finished")

		if o.maxPolls > 0 && job.Polls >= o.maxPolls {
			return "", fmt.Errorf("%w: job %s still %q after %d polls", ErrExportJobTimeout, job.ID, job.Status, job.Polls)
		}

		if err := o.sleep(ctx, o.pollInterval); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: job %s after %d polls: %w", ErrExportJobTimeout, job.ID, job.Polls, err)
			}
			return "", errors.Wrapf(err, "polling export job %s", job.ID)
		}
	}
}

// Download fetches the rows of a completed job.
func (o *Orchestrator) Download(ctx context.Context, downloadURL string) ([]models.RawRecord, error) {
	body, err := o.exec.Do(ctx, Request{Op: "download export data", Method: http.MethodGet, URL: downloadURL})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []models.RawRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UpstreamError{Op: "download export data", Err: errors.Wrap(err, "failed to parse response")}
	}

	o.logger.Info().Int("rows", len(resp.Data)).Msg("Export data downloaded")
	return resp.Data, nil
}

// encodeConfig renders the CONFIG query parameter the way encodeURIComponent would.
func encodeConfig(config string) string {
	q := url.Values{"CONFIG": {config}}.Encode()
	return strings.ReplaceAll(q, "+", "%20")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
