package zoho

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the refresh token exchange was rejected or could not be completed.
	ErrAuthentication = errors.New("failed to get access token")
	// ErrUpstream covers every non-auth failure talking to the analytics API.
	ErrUpstream = errors.New("analytics request failed")
	// ErrInvalidView is returned for a view name outside the known set.
	ErrInvalidView = errors.New("invalid view")
	// ErrExportJobFailed means the platform reported the job as failed.
	ErrExportJobFailed = errors.New("export job failed")
	// ErrExportJobTimeout means the job did not finish within the poll budget.
	ErrExportJobTimeout = errors.New("export job timed out")
)

// UpstreamError carries the detail of a failed call to the analytics API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error (status %d): %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// JobFailedError reports the terminal failure status of an export job.
type JobFailedError struct {
	JobID  string
	Status string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("export job %s failed: %s", e.JobID, e.Status)
}

func (e *JobFailedError) Is(target error) bool {
	return target == ErrExportJobFailed
}
