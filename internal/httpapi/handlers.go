package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"agrivoice-platform/internal/agents"
	"agrivoice-platform/internal/analytics"
	"agrivoice-platform/internal/audit"
	"agrivoice-platform/internal/auth"
	"agrivoice-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Analytics *analytics.Service
	Audit     *audit.Service
	Agents    *agents.Directory
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	switch req.Role {
	case rbac.RoleAdmin, rbac.RoleAnalyst, rbac.RoleSupport:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Analytics ---

// parseRange reads optional from/to RFC3339 query params.
func parseRange(c *gin.Context) (analytics.TimeRange, bool) {
	var rng analytics.TimeRange
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return rng, false
		}
		rng.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return rng, false
		}
		rng.To = &t
	}
	return rng, true
}

func (h Handlers) GetOverview(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Analytics.Overview(c.Request.Context(), analytics.OverviewRequest{Range: rng})
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetPatterns(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	out, err := h.Analytics.Patterns(c.Request.Context(), analytics.OverviewRequest{Range: rng})
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetDashboard is the single fetch behind the ops dashboard's landing view.
func (h Handlers) GetDashboard(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	overview, err := h.Analytics.Overview(ctx, analytics.OverviewRequest{Range: rng})
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}
	patterns, err := h.Analytics.Patterns(ctx, analytics.OverviewRequest{Range: rng})
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}
	live := h.Analytics.ActiveSessions()

	c.JSON(http.StatusOK, gin.H{
		"overview":     overview,
		"patterns":     patterns,
		"active_count": len(live),
		"generated_at": time.Now().UTC(),
	})
}

func (h Handlers) ListSessions(c *gin.Context) {
	req := analytics.RecentSessionsRequest{
		Page:  intQuery(c, "page", 1),
		Limit: intQuery(c, "limit", 20),
		Phone: c.Query("phone"),
	}
	out, err := h.Analytics.RecentSessions(c.Request.Context(), req)
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetSession(c *gin.Context) {
	id := c.Param("session_id")
	rec, found, err := h.Analytics.SessionDetail(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) ListActiveSessions(c *gin.Context) {
	live := h.Analytics.ActiveSessions()
	c.JSON(http.StatusOK, gin.H{"sessions": live, "count": len(live)})
}

// --- Export ---

func (h Handlers) Export(c *gin.Context) {
	rng, ok := parseRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	format := analytics.ExportFormat(c.DefaultQuery("format", string(analytics.ExportJSON)))

	var rows int
	switch format {
	case analytics.ExportJSON:
		out, err := h.Analytics.ExportRows(ctx, rng)
		if err != nil {
			abortAnalyticsErr(c, err)
			return
		}
		rows = len(out)
		c.JSON(http.StatusOK, gin.H{"rows": out})

	case analytics.ExportCSV:
		out, err := h.Analytics.ExportCSV(ctx, rng)
		if err != nil {
			abortAnalyticsErr(c, err)
			return
		}
		rows = countCSVRows(out)
		c.Header("Content-Disposition", `attachment; filename="sessions.csv"`)
		c.Data(http.StatusOK, "text/csv", []byte(out))

	case analytics.ExportXLSX:
		out, err := h.Analytics.ExportXLSX(ctx, rng)
		if err != nil {
			abortAnalyticsErr(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="sessions.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)

	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "format must be json, csv or xlsx"})
		return
	}

	h.logAudit(c, func(actor, role, ip string) error {
		return h.Audit.LogExport(c.Request.Context(), actor, role, ip, string(format), rows)
	})
}

// --- Admin ---

type cleanupRequest struct {
	// OlderThan is a Go duration string, e.g. "720h" for 30 days.
	OlderThan string `json:"older_than"`
}

func (h Handlers) Cleanup(c *gin.Context) {
	var req cleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil || olderThan <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "older_than must be a positive duration"})
		return
	}

	now := time.Now().UTC()
	removed, err := h.Analytics.Cleanup(c.Request.Context(), olderThan, now)
	if err != nil {
		abortAnalyticsErr(c, err)
		return
	}

	h.logAudit(c, func(actor, role, ip string) error {
		return h.Audit.LogCleanup(c.Request.Context(), actor, role, ip, now.Add(-olderThan), removed)
	})
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

type agentRequest struct {
	Agent string `json:"agent"`
}

func (h Handlers) AddAgent(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent directory not configured"})
		return
	}
	var req agentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Agent == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent required"})
		return
	}
	if err := h.Agents.AddAgent(c.Request.Context(), req.Agent); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent registration failed"})
		return
	}
	h.logAudit(c, func(actor, role, ip string) error {
		return h.Audit.LogAgentPoolChange(c.Request.Context(), actor, role, ip, req.Agent, "added")
	})
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (h Handlers) RemoveAgent(c *gin.Context) {
	if h.Agents == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent directory not configured"})
		return
	}
	// DELETE carries the agent in the path; a body is not expected.
	agent := c.Param("agent")
	if agent == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent required"})
		return
	}
	if err := h.Agents.RemoveAgent(c.Request.Context(), agent); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "agent removal failed"})
		return
	}
	h.logAudit(c, func(actor, role, ip string) error {
		return h.Audit.LogAgentPoolChange(c.Request.Context(), actor, role, ip, agent, "removed")
	})
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// --- helpers ---

// logAudit is best-effort: an audit failure never fails the request.
func (h Handlers) logAudit(c *gin.Context, fn func(actor, role, ip string) error) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	_ = fn(actor, role, c.ClientIP())
}

func abortAnalyticsErr(c *gin.Context, err error) {
	if errors.Is(err, analytics.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "analytics query failed"})
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func countCSVRows(csv string) int {
	n := 0
	for _, r := range csv {
		if r == '\n' {
			n++
		}
	}
	if n > 0 {
		n-- // header
	}
	return n
}
