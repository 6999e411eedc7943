package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"workload/internal/availability"
	"workload/internal/backend"
	"workload/internal/config"
	"workload/internal/database"
	"workload/internal/session"
	"workload/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "valid-key"

// fakeBackend is an in-memory employee REST backend.
type fakeBackend struct {
	mu        sync.Mutex
	employees map[string]map[string]any
	patches   []map[string]any
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/healthz":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/projects":
		writeJSON(w, http.StatusOK, []map[string]string{{"project_name": "Zeus"}, {"project_name": "Apollo"}})
	case r.URL.Path == "/api/auth/update-password":
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case len(r.URL.Path) > len("/api/employees/"):
		id := r.URL.Path[len("/api/employees/"):]
		rec, ok := f.employees[id]
		if !ok {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method == http.MethodPatch {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.patches = append(f.patches, body)
			for k, v := range body {
				rec[k] = v
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": rec})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type staticOptions config.Options

func (o staticOptions) Get() config.Options { return config.Options(o) }

type testServer struct {
	Handler http.Handler
	server  *HTTPServer
	backend *fakeBackend
	store   session.Store
}

func setupTestServer(t *testing.T, passwordReset bool) *testServer {
	t.Helper()
	fb := &fakeBackend{employees: map[string]map[string]any{
		"7": {"employee_id": 7, "name": "Ada", "availability": "Occupied"},
	}}
	backendSrv := httptest.NewServer(fb)
	t.Cleanup(backendSrv.Close)

	logger := zerolog.New(io.Discard)
	store := session.NewMemoryStore()
	client := backend.NewClient(backendSrv.URL, "", time.Second)
	svc := service.NewEmployeeService(client, store, nil, time.UTC, passwordReset, &logger)
	opts := staticOptions{Roles: []string{"Tech Lead", "Other"}, Clusters: []string{"MEBM", "M&T"}}

	srv := NewHTTPServer(Config{APIKey: testAPIKey, RateLimitRPS: 1000, RateLimitBurst: 1000}, svc, opts, client.HealthCheck, &logger)
	return &testServer{Handler: srv.Handler(), server: srv, backend: fb, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		if s, ok := body.(string); ok {
			reader = bytes.NewReader([]byte(s))
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAPIKey, testAPIKey)
	req.Header.Set(headerSessionID, "sess-1")
	w := httptest.NewRecorder()
	ts.Handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

// nextMonday returns the first Monday strictly after today (UTC).
func nextMonday() availability.Date {
	d := availability.Today(time.UTC).AddDays(1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}

func TestHandleValidate(t *testing.T) {
	srv := setupTestServer(t, false)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantValid  bool
		wantKind   string
		wantError  string
	}{
		{
			name:       "from in the past",
			body:       ValidateRequest{Field: "from", Candidate: "2024-03-08", Today: "2024-03-11"},
			wantStatus: http.StatusOK,
			wantKind:   "past_date",
			wantError:  "From date cannot be earlier than today.",
		},
		{
			name:       "to on a weekend",
			body:       ValidateRequest{Field: "to", Candidate: "2024-03-16", From: "2024-03-12", Today: "2024-03-11"},
			wantStatus: http.StatusOK,
			wantKind:   "weekend_date",
			wantError:  "To date cannot be a Saturday or Sunday.",
		},
		{
			name:       "span too long",
			body:       ValidateRequest{Field: "from", Candidate: "2024-03-12", To: "2025-03-14", Today: "2024-03-11"},
			wantStatus: http.StatusOK,
			wantKind:   "span_too_long",
			wantError:  "Separation between From and To cannot exceed 1 year.",
		},
		{
			name:       "valid",
			body:       ValidateRequest{Field: "to", Candidate: "2024-03-22", From: "2024-03-12", Today: "2024-03-11"},
			wantStatus: http.StatusOK,
			wantValid:  true,
		},
		{
			name:       "clearing",
			body:       ValidateRequest{Field: "from"},
			wantStatus: http.StatusOK,
			wantValid:  true,
		},
		{
			name:       "bad field",
			body:       ValidateRequest{Field: "since", Candidate: "2024-03-12"},
			wantStatus: http.StatusBadRequest,
			wantError:  `field must be "from" or "to"`,
		},
		{
			name:       "bad date",
			body:       ValidateRequest{Field: "from", Candidate: "12/03/2024"},
			wantStatus: http.StatusBadRequest,
			wantError:  `candidate: invalid date "12/03/2024"; expected YYYY-MM-DD`,
		},
		{
			name:       "unknown field in body",
			body:       `{"field":"from","extra":1}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/api/availability/validate", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			out := decodeBody(t, w)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantValid, out["valid"])
			}
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, out["kind"])
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, out["error"])
			}
		})
	}
}

func TestHandleValidate_MethodNotAllowed(t *testing.T) {
	srv := setupTestServer(t, false)
	w := srv.do(t, http.MethodGet, "/api/availability/validate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleBounds(t *testing.T) {
	srv := setupTestServer(t, false)

	w := srv.do(t, http.MethodGet, "/api/availability/bounds?from=2024-03-12&today=2024-03-11", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"from_min":"2024-03-11","to_min":"2024-03-12","to_max":"2025-03-12"}`, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/availability/bounds?today=2024-02-29", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"from_min":"2024-02-29","to_min":"2024-02-29","to_max":"2025-03-01"}`, w.Body.String())
}

func TestAPIKeyRequired(t *testing.T) {
	srv := setupTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", http.NoBody)
	req.Header.Set(headerAPIKey, "invalid-key")
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Health endpoints are open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := setupTestServer(t, false)

	for _, endpoint := range []string{"/healthz", "/readyz"} {
		t.Run(endpoint, func(t *testing.T) {
			w := srv.do(t, http.MethodGet, endpoint, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "ok", decodeBody(t, w)["status"])
		})
	}

	logger := zerolog.Nop()
	down := NewHTTPServer(Config{}, nil, nil, func(context.Context) error { return errors.New("backend down") }, &logger)
	w := httptest.NewRecorder()
	down.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimit(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewHTTPServer(Config{RateLimitRPS: 0.001, RateLimitBurst: 1}, nil, staticOptions{}, nil, &logger)

	send := func(sid, remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/options", http.NoBody)
		req.Header.Set(headerSessionID, sid)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, send("s1", "10.0.0.1:5000"))
	// A new session id from the same host shares the bucket.
	assert.Equal(t, http.StatusTooManyRequests, send("s2", "10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, send("s3", "10.0.0.1:5002"))
	assert.Equal(t, http.StatusOK, send("s1", "10.0.0.2:5000"))
}

func TestClientLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
	l := newClientLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	now = now.Add(time.Minute)
	assert.True(t, l.allow("10.0.0.2"))
	assert.Len(t, l.buckets, 2)

	now = now.Add(limiterIdleTTL + time.Second)
	assert.True(t, l.allow("10.0.0.3"))
	assert.Len(t, l.buckets, 1, "idle buckets are dropped")
	_, ok := l.buckets["10.0.0.3"]
	assert.True(t, ok)
}

func TestHandleEmployeeAndProjects(t *testing.T) {
	srv := setupTestServer(t, false)

	w := srv.do(t, http.MethodGet, "/api/employees/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", decodeBody(t, w)["name"])

	rec, err := srv.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec["name"])

	w = srv.do(t, http.MethodGet, "/api/employees/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"projects":["Apollo","Zeus"]}`, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/options", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"roles":["Tech Lead","Other"],"clusters":["MEBM","M&T"]}`, w.Body.String())
}

func TestHandleSaveDetails(t *testing.T) {
	srv := setupTestServer(t, false)
	from := nextMonday()
	to := from.AddDays(4)

	w := srv.do(t, http.MethodPatch, "/api/employees/7/details", map[string]any{
		"availability":    "Partially Available",
		"hours_available": "4",
		"from_date":       from.String(),
		"to_date":         to.String(),
		"current_project": "Apollo",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody(t, w)
	assert.Equal(t, "Details saved!", out["message"])

	require.Len(t, srv.backend.patches, 1)
	patch := srv.backend.patches[0]
	assert.Equal(t, 4.0, patch["hours_available"])
	assert.Equal(t, from.String(), patch["from_date"])

	rec, err := srv.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Partially Available", rec["availability"])
}

// pastWeekday returns a weekday at least a week before today (UTC).
func pastWeekday() availability.Date {
	d := availability.Today(time.UTC).AddDays(-7)
	for d.IsWeekend() {
		d = d.AddDays(-1)
	}
	return d
}

func TestHandleSaveDetails_StartedWindow(t *testing.T) {
	srv := setupTestServer(t, false)
	from := pastWeekday()
	to := nextMonday().AddDays(7)
	srv.backend.employees["8"] = map[string]any{
		"employee_id":     8,
		"availability":    "Partially Available",
		"hours_available": 4,
		"from_date":       from.String() + "T00:00:00.000Z",
		"to_date":         to.String(),
	}

	body := map[string]any{
		"availability":    "Partially Available",
		"hours_available": 4,
		"from_date":       from.String(),
		"to_date":         to.String(),
		"current_skills":  []string{"Go"},
	}
	w := srv.do(t, http.MethodPatch, "/api/employees/8/details", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, srv.backend.patches, 1)
	assert.Equal(t, from.String(), srv.backend.patches[0]["from_date"])

	// Moving the start to another past day is still rejected.
	body["from_date"] = from.AddDays(-7).String()
	w = srv.do(t, http.MethodPatch, "/api/employees/8/details", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "From date cannot be earlier than today.", decodeBody(t, w)["fields"].(map[string]any)["date"])
}

func TestHandleSaveDetails_Rejected(t *testing.T) {
	srv := setupTestServer(t, false)
	from := nextMonday()

	w := srv.do(t, http.MethodPatch, "/api/employees/7/details", map[string]any{
		"availability":    "Partially Available",
		"hours_available": 4,
		"from_date":       from.String(),
		"to_date":         from.AddDays(5).String(), // Saturday
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	out := decodeBody(t, w)
	assert.Equal(t, "Please fix validation errors.", out["error"])
	assert.Equal(t, "To date cannot be a Saturday or Sunday.", out["fields"].(map[string]any)["date"])
	assert.Empty(t, srv.backend.patches)
}

func TestHandleSaveProfile(t *testing.T) {
	srv := setupTestServer(t, false)
	body := map[string]any{
		"employee_id":  "7",
		"name":         "Ada",
		"email":        "ada@workload.com",
		"role":         "Tech Lead",
		"cluster_mode": "Single",
		"clusters":     []string{"MEBM"},
	}

	w := srv.do(t, http.MethodPatch, "/api/employees/7/profile", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Profile updated successfully!", decodeBody(t, w)["message"])

	body["role"] = "Astronaut"
	w = srv.do(t, http.MethodPatch, "/api/employees/7/profile", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown role", decodeBody(t, w)["fields"].(map[string]any)["role"])

	w = srv.do(t, http.MethodPatch, "/api/employees/%20/profile", map[string]any{"name": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing original employee ID.", decodeBody(t, w)["error"])
}

func TestHandleUpdatePassword(t *testing.T) {
	body := map[string]string{"currentPassword": "old-secret", "newPassword": "new-secret", "confirmPassword": "new-secret"}

	srv := setupTestServer(t, false)
	w := srv.do(t, http.MethodPost, "/api/auth/update-password", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	srv = setupTestServer(t, true)
	w = srv.do(t, http.MethodPost, "/api/auth/update-password", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeBody(t, w)["success"])

	body["confirmPassword"] = "other"
	w = srv.do(t, http.MethodPost, "/api/auth/update-password", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "New passwords do not match.", decodeBody(t, w)["error"])
}

func TestHandleEmployeeForms(t *testing.T) {
	srv := setupTestServer(t, false)
	srv.backend.employees["9"] = map[string]any{
		"employee_id":       9,
		"name":              "Grace",
		"email":             "grace@workload.com",
		"role":              "Tech Lead",
		"clusters":          []string{"MEBM", "M&T"},
		"availability":      "Available",
		"current_skills":    "Go, SQL",
		"interests":         []string{"SQL", "Rust"},
		"previous_projects": "Apollo;Gemini",
	}

	w := srv.do(t, http.MethodGet, "/api/employees/9/details", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody(t, w)
	form := out["form"].(map[string]any)
	assert.Equal(t, []any{"Go", "SQL", "Rust"}, form["current_skills"])
	assert.Equal(t, []any{"Apollo", "Gemini"}, form["previous_projects"])
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, availability.Today(time.UTC).String(), out["bounds"].(map[string]any)["from_min"])

	w = srv.do(t, http.MethodGet, "/api/employees/9/profile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	form = decodeBody(t, w)["form"].(map[string]any)
	assert.Equal(t, "Multiple", form["cluster_mode"])
	assert.Equal(t, "9", form["employee_id"])

	w = srv.do(t, http.MethodDelete, "/api/employees/9/details", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, PATCH", w.Header().Get("Allow"))

	w = srv.do(t, http.MethodGet, "/api/employees/404/profile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEditDetails(t *testing.T) {
	srv := setupTestServer(t, false)
	from := nextMonday()
	form := map[string]any{
		"availability":    "Partially Available",
		"hours_available": "4",
		"from_date":       from.String(),
		"working_days":    []string{"Mon", "Tue"},
	}

	w := srv.do(t, http.MethodPost, "/api/forms/details/edit", map[string]any{
		"form": form, "action": "set_to_date", "value": from.AddDays(5).String(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decodeBody(t, w)
	assert.Equal(t, "To date cannot be a Saturday or Sunday.", out["date_error"])
	assert.Nil(t, out["form"].(map[string]any)["to_date"])
	assert.Equal(t, false, out["valid"])

	w = srv.do(t, http.MethodPost, "/api/forms/details/edit", map[string]any{
		"form": form, "action": "set_to_date", "value": from.AddDays(4).String(),
	})
	require.Equal(t, http.StatusOK, w.Code)
	out = decodeBody(t, w)
	assert.Equal(t, "", out["date_error"])
	assert.Equal(t, from.AddDays(4).String(), out["form"].(map[string]any)["to_date"])
	assert.Equal(t, from.AddYears(1).String(), out["bounds"].(map[string]any)["to_max"])

	w = srv.do(t, http.MethodPost, "/api/forms/details/edit", map[string]any{
		"form": form, "action": "set_from_date", "value": "next week",
	})
	require.Equal(t, http.StatusOK, w.Code)
	out = decodeBody(t, w)
	assert.Equal(t, "From date must be in YYYY-MM-DD format.", out["date_error"])
	assert.Equal(t, from.String(), out["form"].(map[string]any)["from_date"])

	w = srv.do(t, http.MethodPost, "/api/forms/details/edit", map[string]any{
		"form": form, "action": "add_skill", "value": "Go",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"Go"}, decodeBody(t, w)["form"].(map[string]any)["current_skills"])

	w = srv.do(t, http.MethodPost, "/api/forms/details/edit", map[string]any{"form": form, "action": "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEditProfile(t *testing.T) {
	srv := setupTestServer(t, false)
	form := map[string]any{"employee_id": "7", "cluster_mode": "Multiple", "clusters": []string{"MEBM"}}

	w := srv.do(t, http.MethodPost, "/api/forms/profile/edit", map[string]any{
		"form": form, "action": "toggle_cluster", "value": "M&T",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{"MEBM", "M&T"}, decodeBody(t, w)["form"].(map[string]any)["clusters"])

	w = srv.do(t, http.MethodPost, "/api/forms/profile/edit", map[string]any{
		"form": form, "action": "set_cluster_mode", "value": "Single",
	})
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody(t, w)
	assert.Equal(t, "Single", out["form"].(map[string]any)["cluster_mode"])
	assert.Equal(t, false, out["valid"])

	w = srv.do(t, http.MethodPost, "/api/forms/profile/edit", map[string]any{
		"form": form, "action": "set_cluster_mode", "value": "Several",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeHistory struct {
	limit int
}

func (f *fakeHistory) RecentSaveAttempts(_ context.Context, employeeID string, limit int) ([]database.SaveAttempt, error) {
	f.limit = limit
	return []database.SaveAttempt{{ID: "a1", EmployeeID: employeeID, Form: "details", Status: database.StatusSaved}}, nil
}

type fakeReports struct {
	err   error
	calls int
}

func (f *fakeReports) ExportNow(context.Context) error {
	f.calls++
	return f.err
}

func TestHandleHistoryAndExport(t *testing.T) {
	srv := setupTestServer(t, false)

	w := srv.do(t, http.MethodGet, "/api/employees/7/history", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = srv.do(t, http.MethodPost, "/api/admin/audit/export", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	history := &fakeHistory{}
	reports := &fakeReports{}
	srv.server.SetHistory(history)
	srv.server.SetReports(reports)

	w = srv.do(t, http.MethodGet, "/api/employees/7/history?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 5, history.limit)
	attempts := decodeBody(t, w)["attempts"].([]any)
	require.Len(t, attempts, 1)
	assert.Equal(t, "7", attempts[0].(map[string]any)["employee_id"])

	w = srv.do(t, http.MethodGet, "/api/employees/7/history?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPost, "/api/admin/audit/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, reports.calls)

	reports.err = errors.New("no report destination configured")
	w = srv.do(t, http.MethodPost, "/api/admin/audit/export", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
