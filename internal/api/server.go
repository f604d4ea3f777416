package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/ingest"
	"github.com/asso-tools/assobot/internal/metrics"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/report"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
	"github.com/asso-tools/assobot/internal/status"
)

// Core is the part of the service exposed over HTTP
type Core interface {
	Now() time.Time
	ResolveMember(ctx context.Context, token string, opts resolve.Options) ([]resolve.Match, error)
	Member(ctx context.Context, id int64) (*models.Member, error)
	Status(ctx context.Context, m *models.Member) (status.Status, error)
	Seasons(ctx context.Context) ([]*models.Season, error)
	SeasonSummary(ctx context.Context, name string) (*service.Summary, error)
	EventsBy(ctx context.Context, p service.EventPredicate) ([]*models.Event, error)
	Event(ctx context.Context, id int64) (*models.Event, error)
	AddAttendanceForEvent(ctx context.Context, eventID int64, memberIDs []int64, author int64) (service.AttendanceChange, error)
	ReconcileRoles(ctx context.Context, dir reconcile.Directory, now time.Time, resetAfter time.Duration) (*reconcile.Report, error)
	AttendanceSheet(ctx context.Context, season string) (*report.Sheet, error)
}

// Options configures the HTTP server
type Options struct {
	Threshold  int
	Directory  reconcile.Directory
	ResetAfter time.Duration
	// Gatherer is served on /metrics when set
	Gatherer prometheus.Gatherer
	// Importer enables POST /api/import when set
	Importer *ingest.Importer
	Metrics  *metrics.Metrics
}

// maxWorkbookSize bounds uploaded import workbooks
const maxWorkbookSize = 16 << 20

// Server provides the read API of the membership core plus attendance updates.
type Server struct {
	core   Core
	logger *logrus.Logger
	opts   Options
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(core Core, logger *logrus.Logger, opts Options) *Server {
	s := &Server{core: core, logger: logger, opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/members", s.handleSearchMembers)
	s.mux.HandleFunc("GET /api/members/{id}", s.handleGetMember)

	s.mux.HandleFunc("GET /api/seasons", s.handleGetSeasons)
	s.mux.HandleFunc("GET /api/seasons/{name}/summary", s.handleSeasonSummary)
	s.mux.HandleFunc("GET /api/seasons/{name}/sheet", s.handleSheet)

	s.mux.HandleFunc("GET /api/events", s.handleGetEvents)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}/attendances", s.handleSyncAttendances)

	s.mux.HandleFunc("GET /api/rolesync", s.handleRoleSync)

	if s.opts.Importer != nil {
		s.mux.HandleFunc("POST /api/import", s.handleImport)
	}
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// fail maps a core error onto a status code. Unknown errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrAmbiguous):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrIntegrity), errors.Is(err, errs.ErrConfiguration):
		s.logger.WithError(err).Warn(action)
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).Error(action)
		s.respondError(w, http.StatusInternalServerError, action)
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// pathID extracts the {id} path value and converts it to int64.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return 0, fmt.Errorf("missing id in path")
	}
	return strconv.ParseInt(raw, 10, 64)
}

// seasonName reads {name}, where "current" selects the running season.
func seasonName(r *http.Request) string {
	name := r.PathValue("name")
	if name == "current" {
		return ""
	}
	return name
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

type memberResponse struct {
	ID                int64      `json:"id"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	Handle            string     `json:"handle,omitempty"`
	Score             *int       `json:"score,omitempty"`
	Role              string     `json:"role,omitempty"`
	CurrentSubscriber *bool      `json:"current_subscriber,omitempty"`
	PastSubscriber    *bool      `json:"past_subscriber,omitempty"`
	LastPresence      *time.Time `json:"last_presence,omitempty"`
}

func newMemberResponse(m *models.Member) memberResponse {
	return memberResponse{ID: m.ID, Code: m.Code(), Name: m.DisplayName(), Handle: m.HandleValue()}
}

func (s *Server) handleSearchMembers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}

	opts := resolve.Options{Threshold: s.opts.Threshold}
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 100 {
			s.respondError(w, http.StatusBadRequest, "threshold must be an integer between 0 and 100")
			return
		}
		opts.Threshold = v
	}

	matches, err := s.core.ResolveMember(r.Context(), q, opts)
	if err != nil {
		s.fail(w, err, "failed to search members")
		return
	}

	out := make([]memberResponse, len(matches))
	for i, m := range matches {
		out[i] = newMemberResponse(m.Member)
		if m.Scored {
			score := m.Score
			out[i].Score = &score
		}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid member id")
		return
	}

	m, err := s.core.Member(r.Context(), id)
	if err != nil {
		s.fail(w, err, "failed to get member")
		return
	}
	st, err := s.core.Status(r.Context(), m)
	if err != nil {
		s.fail(w, err, "failed to compute member status")
		return
	}

	out := newMemberResponse(m)
	if st.Role != nil {
		out.Role = st.Role.Name
	}
	out.CurrentSubscriber = &st.CurrentSubscriber
	out.PastSubscriber = &st.PastSubscriber
	out.LastPresence = st.LastPresence
	s.respondJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// Seasons
// ---------------------------------------------------------------------------

type eventTotalResponse struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	Present   int    `json:"present"`
	Proxies   int    `json:"proxies"`
	Anonymous int    `json:"anonymous"`
	Total     int    `json:"total"`
}

type presenceResponse struct {
	Member memberResponse `json:"member"`
	Count  int            `json:"count"`
}

type summaryResponse struct {
	Season      *models.Season       `json:"season"`
	Subscribers int                  `json:"subscribers"`
	Events      []eventTotalResponse `json:"events"`
	Presences   []presenceResponse   `json:"presences"`
}

func (s *Server) handleGetSeasons(w http.ResponseWriter, r *http.Request) {
	seasons, err := s.core.Seasons(r.Context())
	if err != nil {
		s.fail(w, err, "failed to get seasons")
		return
	}
	s.respondJSON(w, http.StatusOK, seasons)
}

func (s *Server) handleSeasonSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.core.SeasonSummary(r.Context(), seasonName(r))
	if err != nil {
		s.fail(w, err, "failed to summarize season")
		return
	}

	out := summaryResponse{
		Season:      sum.Season,
		Subscribers: sum.Subscribers,
		Events:      make([]eventTotalResponse, len(sum.Events)),
		Presences:   make([]presenceResponse, len(sum.Presences)),
	}
	for i, e := range sum.Events {
		out.Events[i] = eventTotalResponse{
			ID:        e.Event.ID,
			Label:     e.Event.Label(),
			Present:   e.Present,
			Proxies:   e.Proxies,
			Anonymous: e.Anonymous,
			Total:     e.Total(),
		}
	}
	for i, p := range sum.Presences {
		out.Presences[i] = presenceResponse{Member: newMemberResponse(p.Member), Count: p.Count}
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := s.core.AttendanceSheet(r.Context(), seasonName(r))
	if err != nil {
		s.fail(w, err, "failed to build attendance sheet")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "emargement-"+sheet.Season.Name+".xlsx"))
	if err := report.WriteXLSX(w, sheet); err != nil {
		s.logger.WithError(err).Error("failed to write attendance sheet")
	}
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

type attendanceResponse struct {
	MemberID *int64 `json:"member_id"`
	Presence bool   `json:"presence"`
	Comment  string `json:"comment,omitempty"`
}

type eventResponse struct {
	ID          int64                `json:"id"`
	Label       string               `json:"label"`
	Date        string               `json:"date"`
	Season      string               `json:"season,omitempty"`
	Attendances []attendanceResponse `json:"attendances,omitempty"`
}

func newEventResponse(e *models.Event, withAttendances bool) eventResponse {
	out := eventResponse{ID: e.ID, Label: e.Label(), Date: e.Date.Format(models.DateLayout)}
	if e.Season != nil {
		out.Season = e.Season.Name
	}
	if withAttendances {
		out.Attendances = make([]attendanceResponse, len(e.Attendances))
		for i, a := range e.Attendances {
			out.Attendances[i] = attendanceResponse{MemberID: a.MemberID, Presence: a.Presence, Comment: a.Comment}
		}
	}
	return out
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	var p service.EventPredicate
	if season := r.URL.Query().Get("season"); season != "" {
		p.Season = &season
	}
	if label := r.URL.Query().Get("label"); label != "" {
		p.Label = &label
	}

	events, err := s.core.EventsBy(r.Context(), p)
	if err != nil {
		s.fail(w, err, "failed to get events")
		return
	}

	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = newEventResponse(e, false)
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	e, err := s.core.Event(r.Context(), id)
	if err != nil {
		s.fail(w, err, "failed to get event")
		return
	}
	s.respondJSON(w, http.StatusOK, newEventResponse(e, true))
}

type syncAttendancesRequest struct {
	MemberIDs []int64 `json:"member_ids"`
	AuthorID  int64   `json:"author_id"`
}

type syncAttendancesResponse struct {
	Added   []int64 `json:"added"`
	Removed []int64 `json:"removed"`
}

func (s *Server) handleSyncAttendances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req syncAttendancesRequest
	if ok, msg := s.decodeJSON(r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.AuthorID == 0 {
		s.respondError(w, http.StatusBadRequest, "author_id is required")
		return
	}

	change, err := s.core.AddAttendanceForEvent(r.Context(), id, req.MemberIDs, req.AuthorID)
	if err != nil {
		s.fail(w, err, "failed to sync attendances")
		return
	}

	s.respondJSON(w, http.StatusOK, syncAttendancesResponse{
		Added:   append([]int64{}, change.Added...),
		Removed: append([]int64{}, change.Removed...),
	})
}

// ---------------------------------------------------------------------------
// Role reconciliation
// ---------------------------------------------------------------------------

type mismatchResponse struct {
	Subject  string `json:"subject"`
	MemberID *int64 `json:"member_id,omitempty"`
	Handle   string `json:"handle"`
	Actual   string `json:"actual"`
}

type groupResponse struct {
	Expected   string             `json:"expected"`
	Mismatches []mismatchResponse `json:"mismatches"`
}

type reconcileResponse struct {
	Checked int             `json:"checked"`
	Groups  []groupResponse `json:"groups"`
}

func (s *Server) handleRoleSync(w http.ResponseWriter, r *http.Request) {
	if s.opts.Directory == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no directory configured")
		return
	}

	rep, err := s.core.ReconcileRoles(r.Context(), s.opts.Directory, s.core.Now(), s.opts.ResetAfter)
	if err != nil {
		s.fail(w, err, "failed to reconcile roles")
		return
	}

	out := reconcileResponse{Checked: rep.Checked, Groups: make([]groupResponse, len(rep.Groups))}
	for i, g := range rep.Groups {
		gr := groupResponse{Expected: g.ExpectedLabel, Mismatches: make([]mismatchResponse, len(g.Mismatches))}
		for j, m := range g.Mismatches {
			mr := mismatchResponse{Subject: m.Subject(), Handle: m.Handle, Actual: m.ActualLabel}
			if m.Member != nil {
				id := m.Member.ID
				mr.MemberID = &id
			}
			gr.Mismatches[j] = mr
		}
		out.Groups[i] = gr
	}
	s.respondJSON(w, http.StatusOK, out)
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

type importResponse struct {
	Seasons     int  `json:"seasons"`
	Members     int  `json:"members"`
	Memberships int  `json:"memberships"`
	Events      int  `json:"events"`
	Attendances int  `json:"attendances"`
	Skipped     int  `json:"skipped,omitempty"`
	DryRun      bool `json:"dry_run,omitempty"`
}

// handleImport reads a workbook from the request body. Parse and reference
// errors are returned as 400 before anything is written.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	author, err := strconv.ParseInt(r.URL.Query().Get("author_id"), 10, 64)
	if err != nil || author <= 0 {
		s.respondError(w, http.StatusBadRequest, "author_id query parameter is required")
		return
	}
	if err := s.opts.Importer.RequireAuthor(r.Context(), author); err != nil {
		if errors.Is(err, errs.ErrConfiguration) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(w, err, "failed to check author")
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	batch, err := ingest.Parse(http.MaxBytesReader(w, r.Body, maxWorkbookSize))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Importer.Validate(r.Context(), batch); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := importResponse{
		Seasons:     len(batch.Seasons),
		Members:     len(batch.Members),
		Memberships: len(batch.Memberships),
		Events:      len(batch.Events),
		Attendances: len(batch.Attendances),
		DryRun:      dryRun,
	}
	if dryRun {
		s.respondJSON(w, http.StatusOK, out)
		return
	}

	stats, err := s.opts.Importer.Apply(r.Context(), batch, author)
	if err != nil {
		s.fail(w, err, "failed to import workbook")
		return
	}
	s.opts.Metrics.AddIngested("season", stats.Seasons)
	s.opts.Metrics.AddIngested("member", stats.Members)
	s.opts.Metrics.AddIngested("membership", stats.Memberships)
	s.opts.Metrics.AddIngested("event", stats.Events)
	s.opts.Metrics.AddIngested("attendance", stats.Attendances)

	s.respondJSON(w, http.StatusOK, importResponse{
		Seasons:     stats.Seasons,
		Members:     stats.Members,
		Memberships: stats.Memberships,
		Events:      stats.Events,
		Attendances: stats.Attendances,
		Skipped:     stats.Skipped,
	})
}
