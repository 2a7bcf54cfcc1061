package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/itrack/internal/models"
	"github.com/joescharf/itrack/internal/store"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath, ist)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewServer(s, quietLogger()), s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createViaAPI(t *testing.T, h http.Handler, body string) int64 {
	t.Helper()
	w := do(t, h, "POST", "/create-issue", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[map[string]any](t, w)
	id, ok := resp["id"].(float64)
	require.True(t, ok)
	return int64(id)
}

func TestHome(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, LivenessMessage, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestCreateIssue_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()

	body := `{"subject":"Login fails","category":"Auth","status":"Open","severity":"High","reporter":"alice","assignee":"bob"}`
	w := do(t, router, "POST", "/create-issue", body)
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[map[string]any](t, w)
	assert.Equal(t, "Issue created successfully", resp["message"])
	id := int64(resp["id"].(float64))

	got, err := s.GetIssue(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Login fails", models.StringValue(got.Subject))
	assert.Equal(t, "alice", models.StringValue(got.Reporter))
	assert.Nil(t, got.Description)
	assert.Nil(t, got.CloseReason)
	require.NotNil(t, got.CreatedDate)
	assert.Equal(t, got.CreatedDate.String(), got.LastUpdate.String())
}

func TestCreateIssue_InvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "POST", "/create-issue", `{"subject":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid JSON"}`, w.Body.String())

	w = do(t, router, "POST", "/create-issue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListIssues_JSONShape(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()
	createViaAPI(t, router, `{"subject":"Crash","status":"Open"}`)

	w := do(t, router, "GET", "/issues", "")
	require.Equal(t, http.StatusOK, w.Code)

	issues := decodeBody[[]map[string]any](t, w)
	require.Len(t, issues, 1)
	issue := issues[0]
	for _, key := range []string{"id", "subject", "category", "status", "severity", "reporter", "assignee", "description", "close_reason", "created_date", "last_update"} {
		assert.Contains(t, issue, key)
	}
	assert.Nil(t, issue["category"])
	created, ok := issue["created_date"].(string)
	require.True(t, ok)
	_, err := time.Parse(models.CivilTimeLayout, created)
	assert.NoError(t, err, "created_date should be YYYY-MM-DD HH:MM:SS")
}

func TestListIssues_Filters(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()
	bugID := createViaAPI(t, router, `{"subject":"export bug","status":"Open","category":"Reports"}`)
	createViaAPI(t, router, `{"subject":"slow page","status":"Closed","category":"Reports"}`)
	createViaAPI(t, router, `{"subject":"login bug","status":"Open","category":"Auth"}`)

	w := do(t, router, "GET", "/issues?search=bug", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]models.Issue](t, w), 2)

	w = do(t, router, "GET", "/issues?search="+strconv.FormatInt(bugID, 10), "")
	got := decodeBody[[]models.Issue](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, bugID, got[0].ID)

	w = do(t, router, "GET", "/issues?status=Open&category=Auth", "")
	got = decodeBody[[]models.Issue](t, w)
	require.Len(t, got, 1)
	assert.Equal(t, "login bug", models.StringValue(got[0].Subject))

	w = do(t, router, "GET", "/issues?search=%20%20&status=", "")
	assert.Len(t, decodeBody[[]models.Issue](t, w), 3)

	today := time.Now().In(ist).Format("2006-01-02")
	w = do(t, router, "GET", "/issues?from_date="+today+"&to_date="+today, "")
	assert.Len(t, decodeBody[[]models.Issue](t, w), 3)

	w = do(t, router, "GET", "/issues?to_date=2000-01-01", "")
	assert.Empty(t, decodeBody[[]models.Issue](t, w))
}

func TestListIssues_InvalidDateIsOpaqueServerError(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/issues?from_date=not-a-date", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to list issues"}`, w.Body.String())
}

func TestUpdateIssue_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	ctx := context.Background()
	id := createViaAPI(t, router, `{"subject":"Crash","status":"Open","reporter":"alice","description":"first"}`)
	target := "/update-issue/" + strconv.FormatInt(id, 10)

	w := do(t, router, "PUT", target, `{"status":"Closed","category":"Core","severity":"High","assignee":"bob","close_reason":"Fixed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Issue updated successfully"}`, w.Body.String())

	got, err := s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fixed", models.StringValue(got.CloseReason))
	assert.Equal(t, "", models.StringValue(got.Description))
	assert.Equal(t, "Crash", models.StringValue(got.Subject))
	assert.Equal(t, "alice", models.StringValue(got.Reporter))

	// Reopening drops the close reason even if the client sends one.
	w = do(t, router, "PUT", target, `{"status":"Reopened","close_reason":"Fixed","description":"again"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err = s.GetIssue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReopened, models.StringValue(got.Status))
	assert.Nil(t, got.CloseReason)
	assert.Equal(t, "again", models.StringValue(got.Description))
	assert.Nil(t, got.Category, "omitted category is overwritten with null")
}

func TestUpdateIssue_ClosedWithoutReason(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	id := createViaAPI(t, router, `{"subject":"x"}`)

	w := do(t, router, "PUT", "/update-issue/"+strconv.FormatInt(id, 10), `{"status":"Closed"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := s.GetIssue(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, models.StringValue(got.Status))
	assert.Nil(t, got.CloseReason)
}

func TestUpdateIssue_MissingIDSucceeds(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "PUT", "/update-issue/9999", `{"status":"Open"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateIssue_InvalidJSON(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "PUT", "/update-issue/1", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNonNumericIDRejectedByRouter(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	for _, tc := range []struct{ method, target string }{
		{"PUT", "/update-issue/abc"},
		{"PUT", "/update-issue/-1"},
		{"DELETE", "/delete-issue/1.5"},
		{"DELETE", "/delete-issue/"},
	} {
		w := do(t, router, tc.method, tc.target, `{}`)
		assert.Equal(t, http.StatusNotFound, w.Code, tc.target)
	}

	w := do(t, router, "DELETE", "/delete-issue/99999999999999999999", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIssue_API(t *testing.T) {
	srv, s := setupTestServer(t)
	router := srv.Router()
	id := createViaAPI(t, router, `{"subject":"remove me"}`)
	target := "/delete-issue/" + strconv.FormatInt(id, 10)

	w := do(t, router, "DELETE", target, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Issue deleted"}`, w.Body.String())

	_, err := s.GetIssue(context.Background(), id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Idempotent
	w = do(t, router, "DELETE", target, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Issue deleted"}`, w.Body.String())
}

func TestReports_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":[],"category":[],"severity":[],"assignee":[],"close_reason":[]}`, w.Body.String())

	createViaAPI(t, router, `{"subject":"a","status":"Open","category":"Auth","severity":"High","assignee":"bob"}`)
	closed := createViaAPI(t, router, `{"subject":"b","status":"Open","category":"Auth","severity":"Low","assignee":"bob"}`)
	do(t, router, "PUT", "/update-issue/"+strconv.FormatInt(closed, 10),
		`{"status":"Closed","category":"Auth","severity":"Low","assignee":"bob","close_reason":"Fixed"}`)

	w = do(t, router, "GET", "/reports", "")
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.ElementsMatch(t, []map[string]any{
		{"status": "Open", "count": float64(1)},
		{"status": "Closed", "count": float64(1)},
	}, raw["status"])
	assert.Equal(t, []map[string]any{{"category": "Auth", "count": float64(2)}}, raw["category"])
	assert.Equal(t, []map[string]any{{"assignee": "bob", "count": float64(2)}}, raw["assignee"])
	assert.Len(t, raw["severity"], 2)
	assert.Equal(t, []map[string]any{{"close_reason": "Fixed", "count": float64(1)}}, raw["close_reason"])
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/issues", "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(t, router, "OPTIONS", "/create-issue", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	first := do(t, router, "GET", "/", "").Header().Get(RequestIDHeader)
	second := do(t, router, "GET", "/", "").Header().Get(RequestIDHeader)
	assert.Len(t, first, 26)
	assert.NotEqual(t, first, second)
}

// --- Store failures ---

// failingStore returns errStoreDown from every operation.
type failingStore struct{}

var errStoreDown = errors.New("dial tcp 10.0.0.5:3306: connection refused")

func (failingStore) CreateIssue(context.Context, *models.Issue) error { return errStoreDown }
func (failingStore) GetIssue(context.Context, int64) (*models.Issue, error) {
	return nil, errStoreDown
}
func (failingStore) ListIssues(context.Context, store.IssueListFilter) ([]*models.Issue, error) {
	return nil, errStoreDown
}
func (failingStore) UpdateIssue(context.Context, int64, *models.IssueUpdate) (int64, error) {
	return 0, errStoreDown
}
func (failingStore) DeleteIssue(context.Context, int64) (int64, error) { return 0, errStoreDown }
func (failingStore) Reports(context.Context) (*models.Reports, error) { return nil, errStoreDown }
func (failingStore) Migrate(context.Context) error                    { return nil }
func (failingStore) Close() error                                     { return nil }

func TestStoreErrorsAreOpaque(t *testing.T) {
	var logs bytes.Buffer
	srv := NewServer(failingStore{}, slog.New(slog.NewTextHandler(&logs, nil)))
	router := srv.Router()

	tests := []struct {
		method, target, body, want string
	}{
		{"GET", "/issues", "", "failed to list issues"},
		{"POST", "/create-issue", `{"subject":"x"}`, "failed to create issue"},
		{"PUT", "/update-issue/1", `{"status":"Open"}`, "failed to update issue"},
		{"DELETE", "/delete-issue/1", "", "failed to delete issue"},
		{"GET", "/reports", "", "failed to load reports"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := do(t, router, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			resp := decodeBody[map[string]string](t, w)
			assert.Equal(t, tt.want, resp["error"])
			assert.NotContains(t, w.Body.String(), "connection refused")
		})
	}

	assert.Contains(t, logs.String(), "connection refused", "detail is logged server-side")
}
