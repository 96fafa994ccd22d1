package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/wordmaster/internal/attempt"
	"github.com/abhisek/wordmaster/internal/config"
	"github.com/abhisek/wordmaster/internal/cooldown"
	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/reward"
	"github.com/abhisek/wordmaster/internal/settlement"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/students"
	"github.com/abhisek/wordmaster/internal/testrequest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router http.Handler
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{now: time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	log := zerolog.Nop()

	roster := students.NewService(st, log)
	l := ledger.New(st, dailycap.New(20, time.UTC), log)
	l.Now = clock
	requests := testrequest.NewService(st, cooldown.New(30*time.Minute), nil, log)
	requests.Now = clock
	engine := settlement.NewEngine(st, l, settlement.NewTerms(100, 10), nil, log)
	engine.Now = clock

	h := NewHandler(Services{
		Students:    roster,
		Ledger:      l,
		Requests:    requests,
		Settlements: engine,
		Attempts:    attempt.NewService(st, l, requests, reward.New(1, 5), log),
	}, log)
	f.router = h.Router(&config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) login(t *testing.T, name string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/students/login", map[string]string{"name": name})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, rec.Body.String())
	return decodeBody[LoginResponse](t, rec).Student.ID
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestLoginAndOverview(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/students/login", map[string]string{"name": "Minji"})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeBody[LoginResponse](t, rec)
	assert.True(t, first.Created)

	rec = f.do(t, http.MethodPost, "/api/v1/students/login", map[string]string{"name": "Minji"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.Student.ID, decodeBody[LoginResponse](t, rec).Student.ID)

	rec = f.do(t, http.MethodGet, "/api/v1/students/"+first.Student.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ov := decodeBody[Overview](t, rec)
	assert.Equal(t, "Minji", ov.Student.Name)
	assert.True(t, ov.CanRequestTest)
	assert.Nil(t, ov.ActiveRequest)
	assert.Equal(t, int64(20), ov.DailyCap)
	assert.Equal(t, int64(20), ov.RemainingToday)
	assert.Equal(t, settlement.Quote{}, ov.Settlement)
}

func TestBodyValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		path string
		body any
	}{
		{"missing name", "/api/v1/students/login", map[string]any{}},
		{"unknown field", "/api/v1/students/login", map[string]any{"name": "A", "age": 9}},
		{"malformed", "/api/v1/students/login", "{"},
		{"blank name", "/api/v1/students/login", map[string]any{"name": "   "}},
		{"negative score", "/api/v1/attempts", map[string]any{"student_id": "s", "request_id": "r", "raw_score": -1}},
		{"fractional score", "/api/v1/attempts", map[string]any{"student_id": "s", "request_id": "r", "raw_score": 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "INVALID_REQUEST", decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestTestRequestAndAttemptFlow(t *testing.T) {
	f := newFixture(t)
	id := f.login(t, "Jae")

	rec := f.do(t, http.MethodPost, "/api/v1/students/"+id+"/test-requests", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	tr := decodeBody[TestRequestResponse](t, rec).Request
	assert.Equal(t, "pending", tr.Status)

	rec = f.do(t, http.MethodPost, "/api/v1/students/"+id+"/test-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code, "repeat request returns the active one")
	assert.Equal(t, tr.ID, decodeBody[TestRequestResponse](t, rec).Request.ID)

	rec = f.do(t, http.MethodPost, "/api/v1/attempts", map[string]any{"student_id": id, "request_id": tr.ID, "raw_score": 5})
	assert.Equal(t, http.StatusConflict, rec.Code, "pending requests cannot be completed")

	rec = f.do(t, http.MethodPost, "/api/v1/admin/test-requests/"+tr.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", decodeBody[TestRequestView](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/test-requests/"+tr.ID+"/reject", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeBody[ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/api/v1/students/"+id+"/test-requests/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/attempts", map[string]any{
		"student_id": id,
		"request_id": tr.ID,
		"raw_score":  25,
		"answers": []map[string]any{
			{"item_id": "apple", "correct": true},
			{"item_id": "banana", "correct": false},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[attempt.Result](t, rec)
	assert.Equal(t, int64(20), res.Granted)
	assert.True(t, res.Capped)
	assert.Equal(t, reward.PartialGrant, res.CappedReason)
	assert.Equal(t, []string{"banana"}, res.WrongItemIDs)

	rec = f.do(t, http.MethodGet, "/api/v1/students/"+id+"/test-requests/active", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.now = f.now.Add(10 * time.Minute)
	rec = f.do(t, http.MethodPost, "/api/v1/students/"+id+"/test-requests", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "COOLDOWN_ACTIVE", body.Code)
	assert.Equal(t, 20, body.RetryAfterMinutes)
	assert.Equal(t, "1200", rec.Header().Get("Retry-After"))

	rec = f.do(t, http.MethodPost, "/api/v1/students/"+id+"/study-order", map[string]any{
		"item_ids": []string{"apple", "banana", "cherry"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"banana", "apple", "cherry"}, decodeBody[studyOrderRequest](t, rec).ItemIDs)

	rec = f.do(t, http.MethodGet, "/api/v1/students/"+id+"/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]LedgerEntryView](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "credit", entries[0].Kind)
	assert.Equal(t, int64(20), entries[0].Delta)
}

func TestAbandon(t *testing.T) {
	f := newFixture(t)
	id := f.login(t, "Ara")

	tr := decodeBody[TestRequestResponse](t, f.do(t, http.MethodPost, "/api/v1/students/"+id+"/test-requests", nil)).Request
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/admin/test-requests/"+tr.ID+"/approve", nil).Code)

	rec := f.do(t, http.MethodPost, "/api/v1/test-requests/"+tr.ID+"/abandon", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/test-requests/"+tr.ID+"/abandon", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettlementFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/admin/students", map[string]string{"name": "Hana"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[StudentView](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/v1/admin/students", map[string]string{"name": "Hana"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/admin/students/"+id+"/balance", map[string]int{"balance": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/admin/students/"+id+"/balance", map[string]int{"balance": 250})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(250), decodeBody[ledger.Receipt](t, rec).Balance)

	rec = f.do(t, http.MethodPost, "/api/v1/students/"+id+"/settlements", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[SettlementResponse](t, rec)
	assert.Equal(t, int64(200), created.Settlement.TokensDeducted)
	assert.Equal(t, int64(2000), created.Settlement.Amount)
	assert.Equal(t, int64(50), created.Receipt.Balance)

	rec = f.do(t, http.MethodPost, "/api/v1/students/"+id+"/settlements", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "BELOW_MINIMUM", decodeBody[ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Summary{PendingSettlements: 1}, decodeBody[Summary](t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/admin/settlements?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]SettlementView](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Hana", list[0].StudentName)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/settlements/"+created.Settlement.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody[SettlementView](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/v1/admin/settlements/"+created.Settlement.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/students/"+id+"/settlements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]SettlementView](t, rec), 1)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{
		"/api/v1/students/missing",
		"/api/v1/students/missing/ledger",
	} {
		rec := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "NOT_FOUND", decodeBody[ErrorResponse](t, rec).Code)
	}
	rec := f.do(t, http.MethodPost, "/api/v1/admin/test-requests/missing/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminListings(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, "A")
	f.login(t, "B")

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/students/"+a+"/test-requests", nil).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]StudentView](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/v1/admin/test-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]TestRequestView](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, "A", pending[0].StudentName)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wordmaster_http_requests_total"))
}
