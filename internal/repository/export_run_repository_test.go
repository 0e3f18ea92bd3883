package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vipul43/analytics-bridge/internal/models"
)

type statement struct {
	SQL  string
	Vars []any
}

// newDryRunDB builds statements without touching a database and records them.
func newDryRunDB(t *testing.T) (*gorm.DB, *[]statement) {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test password=test dbname=test sslmode=disable",
	}), &gorm.Config{
		DryRun:                 true,
		DisableAutomaticPing:   true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open dry run db: %v", err)
	}

	var statements []statement
	capture := func(d *gorm.DB) {
		statements = append(statements, statement{SQL: d.Statement.SQL.String(), Vars: d.Statement.Vars})
	}
	if err := db.Callback().Create().After("gorm:create").Register("test:capture_create", capture); err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	if err := db.Callback().Update().After("gorm:update").Register("test:capture_update", capture); err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	if err := db.Callback().Query().After("gorm:query").Register("test:capture_query", capture); err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	return db, &statements
}

func TestExportRunRepository_Create(t *testing.T) {
	db, statements := newDryRunDB(t)
	repo := NewExportRunRepository(db)

	run := models.ExportRun{ID: "run-1", View: "Extranet_Pedidos", Status: models.RunStatusRunning, StartedAt: time.Now()}
	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(*statements) != 1 || !strings.HasPrefix((*statements)[0].SQL, `INSERT INTO "export_run"`) {
		t.Errorf("expected insert into export_run, got %v", *statements)
	}
}

func TestExportRunRepository_Finish(t *testing.T) {
	db, statements := newDryRunDB(t)
	repo := NewExportRunRepository(db)

	jobID := "job-1"
	finished := time.Now()
	run := models.ExportRun{ID: "run-1", JobID: &jobID, Status: models.RunStatusCompleted, RowCount: 2, Polls: 3, FinishedAt: &finished}
	if err := repo.Finish(context.Background(), run); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(*statements) != 1 {
		t.Fatalf("expected 1 statement, got %v", *statements)
	}
	sql := (*statements)[0].SQL
	if !strings.HasPrefix(sql, `UPDATE "export_run" SET`) {
		t.Errorf("expected update of export_run, got %s", sql)
	}
	for _, column := range []string{`"status"`, `"row_count"`, `"polls"`, `"finished_at"`, `WHERE id = `} {
		if !strings.Contains(sql, column) {
			t.Errorf("expected %s in %s", column, sql)
		}
	}
}

func TestExportRunRepository_GetByID(t *testing.T) {
	db, statements := newDryRunDB(t)
	repo := NewExportRunRepository(db)

	if _, err := repo.GetByID(context.Background(), "run-1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(*statements) != 1 {
		t.Fatalf("expected 1 statement, got %v", *statements)
	}
	stmt := (*statements)[0]
	if !strings.HasPrefix(stmt.SQL, `SELECT * FROM "export_run"`) || !strings.Contains(stmt.SQL, "WHERE id = ") {
		t.Errorf("expected select by id from export_run, got %s", stmt.SQL)
	}
	if len(stmt.Vars) == 0 || stmt.Vars[0] != "run-1" {
		t.Errorf("expected id run-1 as first var, got %v", stmt.Vars)
	}
}

func TestExportRunRepository_GetByID_NotFound(t *testing.T) {
	db, _ := newDryRunDB(t)
	err := db.Callback().Query().After("gorm:query").Register("test:not_found", func(d *gorm.DB) {
		_ = d.AddError(gorm.ErrRecordNotFound)
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}
	repo := NewExportRunRepository(db)

	run, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	if run != nil {
		t.Errorf("expected no run, got %+v", run)
	}
}

func TestExportRunRepository_ListRecent(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"explicit", 10, 10},
		{"zero uses max", 0, maxListLimit},
		{"too large uses max", 10000, maxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, statements := newDryRunDB(t)
			repo := NewExportRunRepository(db)

			if _, err := repo.ListRecent(context.Background(), tt.limit); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if len(*statements) != 1 {
				t.Fatalf("expected 1 statement, got %v", *statements)
			}
			stmt := (*statements)[0]
			if !strings.Contains(stmt.SQL, "ORDER BY started_at DESC") || !strings.Contains(stmt.SQL, "LIMIT") {
				t.Errorf("expected ordered, limited query, got %s", stmt.SQL)
			}
			if !strings.Contains(stmt.SQL, fmt.Sprintf("LIMIT %d", tt.want)) && !containsVar(stmt.Vars, tt.want) {
				t.Errorf("expected limit %d, got %s %v", tt.want, stmt.SQL, stmt.Vars)
			}
		})
	}
}

func containsVar(vars []any, want int) bool {
	for _, v := range vars {
		if v == want {
			return true
		}
	}
	return false
}
