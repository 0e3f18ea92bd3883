package zoho

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedDoer serves job status responses in order and records every request.
type scriptedDoer struct {
	jobID    string
	statuses []string
	rows     string
	failOn   string
	requests []Request
	polls    int
}

func (d *scriptedDoer) Do(ctx context.Context, req Request) ([]byte, error) {
	d.requests = append(d.requests, req)
	if d.failOn == req.Op {
		return nil, &UpstreamError{Op: req.Op, StatusCode: 500, Body: "boom"}
	}

	switch req.Op {
	case "create export job":
		return []byte(fmt.Sprintf(`{"status":"success","data":{"jobId":%q}}`, d.jobID)), nil
	case "get export job":
		status := d.statuses[len(d.statuses)-1]
		if d.polls < len(d.statuses) {
			status = d.statuses[d.polls]
		}
		d.polls++
		downloadURL := ""
		if status == StatusCompleted {
			downloadURL = "https://download.example/jobs/" + d.jobID
		}
		return []byte(fmt.Sprintf(`{"data":{"jobId":%q,"jobStatus":%q,"downloadUrl":%q}}`, d.jobID, status, downloadURL)), nil
	case "download export data":
		return []byte(d.rows), nil
	}
	return nil, fmt.Errorf("unexpected op %q", req.Op)
}

func newTestOrchestrator(t *testing.T, doer Doer, maxPolls int) (*Orchestrator, *[]time.Duration) {
	t.Helper()
	registry, err := NewRegistry(testViewIDs())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	o := NewOrchestrator(doer, registry, OrchestratorConfig{
		BaseURL:  "https://analytics.example/restapi/v2/",
		MaxPolls: maxPolls,
	}, zerolog.Nop())

	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return o, &sleeps
}

func TestOrchestrator_Run_PollsUntilCompleted(t *testing.T) {
	doer := &scriptedDoer{
		jobID:    "job-7",
		statuses: []string{"JOB IN PROGRESS", "JOB IN PROGRESS", "JOB COMPLETED"},
		rows:     `{"data":[{"codcli":"1","nomcli":"ACME"},{"codcli":"2","nomcli":null}]}`,
	}
	o, sleeps := newTestOrchestrator(t, doer, 0)

	rows, job, err := o.Run(context.Background(), ViewExtranetPedidos, `{"responseFormat":"json"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if job.Polls != 3 {
		t.Errorf("expected 3 polls, got %d", job.Polls)
	}
	if job.State != JobCompleted {
		t.Errorf("expected state completed, got %s", job.State)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != 3*time.Second {
			t.Errorf("expected 3s poll interval, got %s", d)
		}
	}

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if v := rows[0]["nomcli"]; v == nil || *v != "ACME" {
		t.Errorf("expected nomcli ACME, got %v", v)
	}
	if v, ok := rows[1]["nomcli"]; !ok || v != nil {
		t.Errorf("expected null nomcli to decode as nil, got %v (present=%v)", v, ok)
	}

	last := doer.requests[len(doer.requests)-1]
	if last.URL != "https://download.example/jobs/job-7" {
		t.Errorf("expected download from job URL, got %s", last.URL)
	}
}

func TestOrchestrator_Submit_BuildsRequest(t *testing.T) {
	doer := &scriptedDoer{jobID: "job-1", statuses: []string{StatusCompleted}, rows: `{"data":[]}`}
	o, _ := newTestOrchestrator(t, doer, 0)

	binding, err := o.registry.Resolve(ViewExtranetPotenciais)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	job, err := o.Submit(context.Background(), binding, `{"responseFormat":"json"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if job.ID != "job-1" || job.State != JobSubmitted {
		t.Errorf("unexpected job %+v", job)
	}

	want := "https://analytics.example/restapi/v2/bulk/workspaces/ws-1/views/view-potenciais/data?CONFIG=%7B%22responseFormat%22%3A%22json%22%7D"
	if got := doer.requests[0].URL; got != want {
		t.Errorf("expected URL\n%s\ngot\n%s", want, got)
	}
}

func TestOrchestrator_Poll_Failed(t *testing.T) {
	doer := &scriptedDoer{jobID: "job-2", statuses: []string{"JOB FAILED: QUOTA EXCEEDED"}}
	o, sleeps := newTestOrchestrator(t, doer, 0)

	_, job, err := o.Run(context.Background(), ViewExtranetTitulos, `{"responseFormat":"json"}`)
	if !errors.Is(err, ErrExportJobFailed) {
		t.Fatalf("expected ErrExportJobFailed, got %v", err)
	}

	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected *JobFailedError, got %T", err)
	}
	if failed.Status != "JOB FAILED: QUOTA EXCEEDED" {
		t.Errorf("expected failure status to be kept, got %q", failed.Status)
	}
	if job.Polls != 1 || job.State != JobFailed {
		t.Errorf("expected failure on first poll, got polls=%d state=%s", job.Polls, job.State)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no sleep, got %d", len(*sleeps))
	}
}

func TestOrchestrator_Poll_MaxPolls(t *testing.T) {
	doer := &scriptedDoer{jobID: "job-3", statuses: []string{"JOB IN PROGRESS"}}
	o, _ := newTestOrchestrator(t, doer, 4)

	_, job, err := o.Run(context.Background(), ViewExtranetPedidos, `{"responseFormat":"json"}`)
	if !errors.Is(err, ErrExportJobTimeout) {
		t.Fatalf("expected ErrExportJobTimeout, got %v", err)
	}
	if job.Polls != 4 {
		t.Errorf("expected 4 polls, got %d", job.Polls)
	}
}

func TestOrchestrator_Poll_ContextDeadline(t *testing.T) {
	doer := &scriptedDoer{jobID: "job-4", statuses: []string{"JOB IN PROGRESS"}}
	o, _ := newTestOrchestrator(t, doer, 0)
	o.sleep = func(ctx context.Context, d time.Duration) error {
		return context.DeadlineExceeded
	}

	_, _, err := o.Run(context.Background(), ViewExtranetPedidos, `{"responseFormat":"json"}`)
	if !errors.Is(err, ErrExportJobTimeout) {
		t.Fatalf("expected ErrExportJobTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded in chain, got %v", err)
	}
}

func TestOrchestrator_Poll_Canceled(t *testing.T) {
	doer := &scriptedDoer{jobID: "job-5", statuses: []string{"JOB IN PROGRESS"}}
	o, _ := newTestOrchestrator(t, doer, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := o.Run(ctx, ViewExtranetPedidos, `{"responseFormat":"json"}`)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrExportJobTimeout) {
		t.Errorf("cancellation should not be reported as a timeout")
	}
}

func TestOrchestrator_Run_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name      string
		failOn    string
		wantJob   bool
		wantCalls int
	}{
		{"submit", "create export job", false, 1},
		{"poll", "get export job", true, 2},
		{"download", "download export data", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &scriptedDoer{jobID: "job-6", statuses: []string{StatusCompleted}, rows: `{"data":[]}`, failOn: tt.failOn}
			o, _ := newTestOrchestrator(t, doer, 0)

			_, job, err := o.Run(context.Background(), ViewExtranetPedidos, `{"responseFormat":"json"}`)
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if (job != nil) != tt.wantJob {
				t.Errorf("expected job returned=%v, got %v", tt.wantJob, job)
			}
			if len(doer.requests) != tt.wantCalls {
				t.Errorf("expected %d calls, got %d", tt.wantCalls, len(doer.requests))
			}
		})
	}
}

func TestOrchestrator_Submit_MissingJobID(t *testing.T) {
	doer := &scriptedDoer{jobID: ""}
	o, _ := newTestOrchestrator(t, doer, 0)

	_, _, err := o.Run(context.Background(), ViewExtranetPedidos, `{"responseFormat":"json"}`)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "jobId") {
		t.Errorf("expected error to mention jobId, got %v", err)
	}
}

func TestEncodeConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   string
		expected string
	}{
		{"json only", `{"responseFormat":"json"}`, "CONFIG=%7B%22responseFormat%22%3A%22json%22%7D"},
		{"space", `{"criteria":"a = 1"}`, "CONFIG=%7B%22criteria%22%3A%22a%20%3D%201%22%7D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeConfig(tt.config); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}
