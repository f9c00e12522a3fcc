package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agrivoice-platform/internal/agents"
	"agrivoice-platform/internal/analytics"
	"agrivoice-platform/internal/audit"
	"agrivoice-platform/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type noLive struct{}

func (noLive) ActiveSessions() []session.CallSession { return nil }

// poolStore fakes the Redis surface behind the agent directory and records
// pool mutations.
type poolStore struct {
	added   []string
	removed []string
}

func (s *poolStore) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (s *poolStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (s *poolStore) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (s *poolStore) SRandMember(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult("", redis.Nil)
}

func (s *poolStore) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		s.added = append(s.added, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (s *poolStore) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		s.removed = append(s.removed, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func seededHandlers(t *testing.T) (Handlers, *audit.MemoryRepo) {
	t.Helper()
	repo := session.NewMemoryRepo()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	end := base.Add(4 * time.Minute)
	rec := session.EngagementRecord{
		SessionID:             "s1",
		PhoneNumber:           "+234800",
		CallStartTime:         base,
		CallEndTime:           &end,
		TotalDurationSeconds:  240,
		SelectedLanguage:      "ha",
		CurrentState:          session.StateCallEnded,
		FinalState:            session.StatePostAIMenu,
		TotalAIInteractions:   2,
		CompletedSuccessfully: true,
		TerminationReason:     session.ReasonCompleted,
		TerminationTime:       end,
		EngagementScore:       87,
		SatisfactionIndicator: "high",
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	auditRepo := audit.NewMemoryRepo()
	return Handlers{
		Analytics: analytics.NewService(repo, noLive{}),
		Audit:     audit.NewService(auditRepo),
	}, auditRepo
}

func testRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/overview", h.GetOverview)
	r.GET("/dashboard", h.GetDashboard)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/active", h.ListActiveSessions)
	r.GET("/sessions/:session_id", h.GetSession)
	r.GET("/export", h.Export)
	r.POST("/admin/cleanup", h.Cleanup)
	r.POST("/admin/agents", h.AddAgent)
	r.DELETE("/admin/agents/:agent", h.RemoveAgent)
	return r
}

func TestGetOverview(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/overview", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out analytics.Overview
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TotalSessions != 1 || out.CompletedSessions != 1 {
		t.Fatalf("overview = %+v", out)
	}
}

func TestGetOverviewRejectsBadRange(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/overview?from=yesterday", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/sessions/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/sessions?page=1&limit=10", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out analytics.RecentSessions
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 1 || len(out.Records) != 1 {
		t.Fatalf("sessions = %+v", out)
	}
}

func TestExportCSVWritesAuditEvent(t *testing.T) {
	h, auditRepo := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/export?format=csv", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "s1") {
		t.Fatalf("csv missing row:\n%s", w.Body.String())
	}

	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeExport {
		t.Fatalf("audit events = %+v", evs)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/export?format=pdf", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestCleanupRemovesOldRecords(t *testing.T) {
	h, auditRepo := seededHandlers(t)
	r := testRouter(h)

	body := strings.NewReader(`{"older_than":"1h"}`)
	req := httptest.NewRequest("POST", "/admin/cleanup", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Removed int `json:"removed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Removed != 1 {
		t.Fatalf("removed = %d", out.Removed)
	}
	if len(auditRepo.Events()) != 1 {
		t.Fatalf("expected cleanup audit event")
	}
}

func TestRemoveAgentUsesPathParam(t *testing.T) {
	h, auditRepo := seededHandlers(t)
	pool := &poolStore{}
	h.Agents = agents.NewDirectory(pool, time.Hour)
	r := testRouter(h)

	// DELETE carries no body; the agent rides in the path.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/admin/agents/%2B2348000000000", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(pool.removed) != 1 || pool.removed[0] != "+2348000000000" {
		t.Fatalf("removed = %v", pool.removed)
	}
	evs := auditRepo.Events()
	if len(evs) != 1 || evs[0].Type != audit.EventTypeAgentPool {
		t.Fatalf("audit events = %+v", evs)
	}
}

func TestAddAgentRequiresBody(t *testing.T) {
	h, _ := seededHandlers(t)
	pool := &poolStore{}
	h.Agents = agents.NewDirectory(pool, time.Hour)
	r := testRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/admin/agents", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
	if len(pool.added) != 0 {
		t.Fatalf("added = %v", pool.added)
	}
}

func TestCleanupRejectsBadDuration(t *testing.T) {
	h, _ := seededHandlers(t)
	r := testRouter(h)

	req := httptest.NewRequest("POST", "/admin/cleanup", strings.NewReader(`{"older_than":"-5m"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}
