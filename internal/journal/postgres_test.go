package journal

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

var journalColumns = []string{
	"job_id", "user_id", "query", "format", "state", "error", "size_bytes", "created_at", "updated_at",
}

func TestPostgresRecordUpserts(t *testing.T) {
	p, mock := newMockPostgres(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	updated := created.Add(time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO download_jobs") + ".*ON CONFLICT \\(job_id\\) DO UPDATE").
		WithArgs("job-1", int64(42), "Bohemian Rhapsody", "audio", StateSucceeded, "", int64(2048), created, updated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.Record(context.Background(), Entry{
		JobID:     "job-1",
		UserID:    42,
		Query:     "Bohemian Rhapsody",
		Format:    "audio",
		State:     StateSucceeded,
		SizeBytes: 2048,
		CreatedAt: created,
		UpdatedAt: updated,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRecordWrapsError(t *testing.T) {
	p, mock := newMockPostgres(t)
	boom := errors.New("relation does not exist")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO download_jobs")).WillReturnError(boom)

	err := p.Record(context.Background(), Entry{JobID: "job-2"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPostgresRecentNewestFirst(t *testing.T) {
	p, mock := newMockPostgres(t)
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	rows := sqlmock.NewRows(journalColumns).
		AddRow("b", int64(7), "Lemon", "video", StateFailed, "no output", int64(0), newer, newer).
		AddRow("a", int64(7), "Halo", "audio", StateSucceeded, "", int64(4096), older, older)
	mock.ExpectQuery(regexp.QuoteMeta("FROM download_jobs") + ".*ORDER BY created_at DESC").
		WithArgs(int64(10)).
		WillReturnRows(rows)

	got, err := p.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].JobID != "b" || got[1].JobID != "a" {
		t.Fatalf("unexpected entries %+v", got)
	}
	if got[0].Error != "no output" || got[1].SizeBytes != 4096 || !got[1].CreatedAt.Equal(older) {
		t.Fatalf("columns not mapped: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRecentError(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM download_jobs")).
		WithArgs(int64(3)).
		WillReturnError(errors.New("connection reset"))

	if _, err := p.Recent(context.Background(), 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestPostgresClose(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectClose()
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
