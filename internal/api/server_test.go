package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/ingest"
	"github.com/asso-tools/assobot/internal/models"
	"github.com/asso-tools/assobot/internal/reconcile"
	"github.com/asso-tools/assobot/internal/report"
	"github.com/asso-tools/assobot/internal/resolve"
	"github.com/asso-tools/assobot/internal/service"
	"github.com/asso-tools/assobot/internal/status"
)

var season = &models.Season{ID: 2, Name: "2025-2026", Start: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}

type fakeCore struct {
	members map[int64]*models.Member
	events  []*models.Event
	synced  []int64
	author  int64
	failed  error
}

func (f *fakeCore) Now() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

func (f *fakeCore) ResolveMember(_ context.Context, token string, opts resolve.Options) ([]resolve.Match, error) {
	if f.failed != nil {
		return nil, f.failed
	}
	var out []resolve.Match
	for _, m := range f.members {
		if strings.Contains(strings.ToLower(m.FullName()), strings.ToLower(token)) {
			out = append(out, resolve.Match{Member: m, Score: 80 + opts.Threshold/10, Scored: true})
		}
	}
	return out, nil
}

func (f *fakeCore) Member(_ context.Context, id int64) (*models.Member, error) {
	if m, ok := f.members[id]; ok {
		return m, nil
	}
	return nil, errs.NotFound("member", id)
}

func (f *fakeCore) Status(context.Context, *models.Member) (status.Status, error) {
	return status.Status{Role: &models.AssoRole{Name: "Adhérent"}, CurrentSubscriber: true}, nil
}

func (f *fakeCore) Seasons(context.Context) ([]*models.Season, error) {
	return []*models.Season{season}, nil
}

func (f *fakeCore) SeasonSummary(_ context.Context, name string) (*service.Summary, error) {
	if name != "" && name != season.Name {
		return nil, errs.NotFound("season", name)
	}
	return &service.Summary{
		Season:      season,
		Subscribers: 3,
		Events:      []service.EventTotal{{Event: f.events[0], Present: 2, Proxies: 1}},
		Presences:   []service.MemberPresence{{Member: f.members[2], Count: 1}},
	}, nil
}

func (f *fakeCore) EventsBy(context.Context, service.EventPredicate) ([]*models.Event, error) {
	return f.events, nil
}

func (f *fakeCore) Event(_ context.Context, id int64) (*models.Event, error) {
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errs.NotFound("event", id)
}

func (f *fakeCore) AddAttendanceForEvent(_ context.Context, _ int64, ids []int64, author int64) (service.AttendanceChange, error) {
	f.synced, f.author = ids, author
	return service.AttendanceChange{Added: ids}, nil
}

func (f *fakeCore) ReconcileRoles(context.Context, reconcile.Directory, time.Time, time.Duration) (*reconcile.Report, error) {
	return &reconcile.Report{Checked: 2, Groups: []reconcile.Group{{
		ExpectedLabel: "Membre",
		Mismatches:    []reconcile.Mismatch{{Member: f.members[2], Handle: "jdupont", ActualLabel: "(aucun)"}},
	}}}, nil
}

func (f *fakeCore) AttendanceSheet(context.Context, string) (*report.Sheet, error) {
	return report.Build(nil, season), nil
}

func newTestServer(opts Options) (*fakeCore, *httptest.Server) {
	core := &fakeCore{
		members: map[int64]*models.Member{
			2: {ID: 2, Credential: &models.Credential{FirstName: "Jean", LastName: "Dupont"}},
		},
		events: []*models.Event{{ID: 7, Date: time.Date(2025, 10, 4, 0, 0, 0, 0, time.UTC), Season: season}},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return core, httptest.NewServer(NewServer(core, logger, opts).Handler())
}

func getJSON(t *testing.T, srv *httptest.Server, path string, dst any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestSearchMembers(t *testing.T) {
	_, srv := newTestServer(Options{Threshold: 50})
	defer srv.Close()

	var out []memberResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/api/members?q=dupont", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "#0002", out[0].Code)
	require.NotNil(t, out[0].Score)
	assert.Equal(t, 85, *out[0].Score)

	var apiErr map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/members", &apiErr))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/members?q=x&threshold=101", &apiErr))
}

func TestSearchMembersHidesInternalErrors(t *testing.T) {
	core, srv := newTestServer(Options{})
	defer srv.Close()
	core.failed = assert.AnError

	var apiErr map[string]string
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv, "/api/members?q=x", &apiErr))
	assert.Equal(t, "failed to search members", apiErr["error"])

	core.failed = &errs.AmbiguityError{Token: "x", Count: 2}
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/members?q=x", &apiErr))
}

func TestGetMember(t *testing.T) {
	_, srv := newTestServer(Options{})
	defer srv.Close()

	var out memberResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/api/members/2", &out))
	assert.Equal(t, "Jean Dupont", out.Name)
	assert.Equal(t, "Adhérent", out.Role)
	require.NotNil(t, out.CurrentSubscriber)
	assert.True(t, *out.CurrentSubscriber)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv, "/api/members/9", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/api/members/abc", nil))
}

func TestSeasonSummary(t *testing.T) {
	_, srv := newTestServer(Options{})
	defer srv.Close()

	var out summaryResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/api/seasons/current/summary", &out))
	assert.Equal(t, 3, out.Subscribers)
	require.Len(t, out.Events, 1)
	assert.Equal(t, 3, out.Events[0].Total)
	assert.Equal(t, "2025-10-04", out.Events[0].Label)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv, "/api/seasons/1999-2000/summary", nil))
}

func TestSheetDownload(t *testing.T) {
	_, srv := newTestServer(Options{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/seasons/current/sheet")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "emargement-2025-2026.xlsx")
}

func TestSyncAttendances(t *testing.T) {
	core, srv := newTestServer(Options{})
	defer srv.Close()

	put := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/events/7/attendances", strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := put(`{"member_ids": [2]}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, core.synced)

	resp = put(`{"member_ids": [2], "author_id": 1}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var out syncAttendancesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []int64{2}, out.Added)
	assert.Empty(t, out.Removed)
	assert.Equal(t, int64(1), core.author)
}

func TestRoleSync(t *testing.T) {
	_, srv := newTestServer(Options{})
	defer srv.Close()
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv, "/api/rolesync", nil))

	_, srv = newTestServer(Options{Directory: reconcile.NewStaticDirectory(nil)})
	defer srv.Close()
	var out reconcileResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv, "/api/rolesync", &out))
	assert.Equal(t, 2, out.Checked)
	require.Len(t, out.Groups, 1)
	assert.Equal(t, "#0002 Jean Dupont", out.Groups[0].Mismatches[0].Subject)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "assobot_test_total"}))
	_, srv := newTestServer(Options{Gatherer: reg})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "assobot_test_total 0")
}

// authorStore knows a single author. Other store methods are never reached.
type authorStore struct {
	ingest.Store
	author int64
}

func (s authorStore) RequireAuthor(_ context.Context, author int64) error {
	if author != s.author {
		return &errs.ConfigError{What: "acting member does not exist"}
	}
	return nil
}

func TestImportRejectsBadRequests(t *testing.T) {
	_, srv := newTestServer(Options{})
	resp, err := http.Post(srv.URL+"/api/import?author_id=1", "application/octet-stream", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	srv.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "disabled without an importer")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	_, srv = newTestServer(Options{Importer: ingest.NewImporter(authorStore{author: 1}, logger)})
	defer srv.Close()

	for _, query := range []string{"", "?author_id=-1", "?author_id=99"} {
		resp, err = http.Post(srv.URL+"/api/import"+query, "application/octet-stream", strings.NewReader("x"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}

	resp, err = http.Post(srv.URL+"/api/import?author_id=1", "application/octet-stream", strings.NewReader("not a workbook"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
