package audit

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := svc.LogCleanup(context.Background(), "u", "admin", "1.2.3.4", cutoff, 42); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].IPAddress != "1.2.3.4" {
		t.Fatalf("expected ip captured")
	}
	if evs[0].Type != EventTypeCleanup {
		t.Fatalf("expected data_cleanup, got %s", evs[0].Type)
	}
	if !strings.Contains(evs[0].Message, "42") {
		t.Fatalf("message = %q", evs[0].Message)
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("id/timestamp not filled: %+v", evs[0])
	}
}

func TestService_LogExportAndAgentPool(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogExport(context.Background(), "u", "analyst", "", "csv", 10); err != nil {
		t.Fatalf("export: %v", err)
	}
	if err := svc.LogAgentPoolChange(context.Background(), "u", "admin", "", "sip:a@x", "added"); err != nil {
		t.Fatalf("agent pool: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events")
	}
	if evs[1].Agent != "sip:a@x" {
		t.Fatalf("agent = %q", evs[1].Agent)
	}
}
