package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/calendar"
	"calgrid/internal/config"
	"calgrid/internal/model"
)

var now = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	return cfg
}

func testOptions() calendar.Options {
	opts := calendar.DefaultOptions()
	opts.Now = func() time.Time { return now }
	opts.MarkDisabled = func(d time.Time) bool { return d.Equal(day(16)) }
	return opts
}

type failingLoader struct{}

func (failingLoader) LoadEvents(context.Context, calendar.Range) ([]model.Event, error) {
	return nil, errors.New("upstream unavailable")
}

func newServer(t *testing.T, cfg *config.Config, opts calendar.Options) (*Server, *httptest.Server) {
	t.Helper()
	engine, err := calendar.New(opts, time.Time{})
	require.NoError(t, err)
	engine.SetEventSource([]model.Event{{
		Identifier: "dentist",
		Title:      "Dentist",
		StartTime:  now.Add(-time.Hour),
		EndTime:    now,
	}})

	s, err := NewServer(cfg, engine, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func do(t *testing.T, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	_, ts := newServer(t, testConfig(), testOptions())

	code, body := do(t, http.MethodGet, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, _ = do(t, http.MethodPost, ts.URL+"/health")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestState(t *testing.T) {
	_, ts := newServer(t, testConfig(), testOptions())

	code, body := do(t, http.MethodGet, ts.URL+"/api/state")
	require.Equal(t, http.StatusOK, code)

	var st struct {
		Mode      string `json:"mode"`
		Title     string `json:"title"`
		Selection *struct {
			SelectedTime time.Time     `json:"selectedTime"`
			Events       []model.Event `json:"events"`
		} `json:"selection"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, "month", st.Mode)
	assert.Equal(t, "March 2024", st.Title)
	require.NotNil(t, st.Selection)
	assert.True(t, st.Selection.SelectedTime.Equal(day(15)))
	require.Len(t, st.Selection.Events, 1)
	assert.Equal(t, "dentist", st.Selection.Events[0].Identifier)
}

func TestView(t *testing.T) {
	_, ts := newServer(t, testConfig(), testOptions())

	code, body := do(t, http.MethodGet, ts.URL+"/api/view?mode=day&date=2024-03-15")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"title":"March 15, 2024"`)
	assert.Contains(t, body, `"identifier":"dentist"`)

	// Stateless: the engine is still in month mode.
	_, state := do(t, http.MethodGet, ts.URL+"/api/state")
	assert.Contains(t, state, `"mode":"month"`)

	code, _ = do(t, http.MethodGet, ts.URL+"/api/view?date=15/03/2024")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodGet, ts.URL+"/api/view?mode=year")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestViewCache(t *testing.T) {
	s, ts := newServer(t, testConfig(), testOptions())

	for i := 0; i < 2; i++ {
		code, _ := do(t, http.MethodGet, ts.URL+"/api/view?mode=week&date=2024-03-12")
		require.Equal(t, http.StatusOK, code)
	}
	assert.Equal(t, 1, s.views.Len())

	code, _ := do(t, http.MethodPost, ts.URL+"/api/refresh")
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, s.views.Len())

	_, metrics := do(t, http.MethodGet, ts.URL+"/metrics")
	assert.Contains(t, metrics, `calgrid_web_view_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, metrics, `calgrid_web_view_cache_lookups_total{result="miss"} 1`)
	assert.Contains(t, metrics, `calgrid_http_requests_total{code="200",route="view"} 2`)
	assert.Contains(t, metrics, `calgrid_events_loaded 1`)
}

func TestSelect(t *testing.T) {
	opts := testOptions()
	opts.AutoSelect = false
	_, ts := newServer(t, testConfig(), opts)

	code, body := do(t, http.MethodPost, ts.URL+"/api/select?date=2024-03-20")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"selectedTime":"2024-03-20T00:00:00Z"`)

	code, body = do(t, http.MethodPost, ts.URL+"/api/select?date=2024-03-16")
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, body, "disabled")

	code, _ = do(t, http.MethodPost, ts.URL+"/api/select?date=2025-01-01")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = do(t, http.MethodPost, ts.URL+"/api/select")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodGet, ts.URL+"/api/select?date=2024-03-20")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestNavigateAndMode(t *testing.T) {
	_, ts := newServer(t, testConfig(), testOptions())

	code, body := do(t, http.MethodPost, ts.URL+"/api/navigate?to=next")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"title":"April 2024"`)

	code, body = do(t, http.MethodPost, ts.URL+"/api/navigate?to=today")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"title":"March 2024"`)

	code, body = do(t, http.MethodPost, ts.URL+"/api/mode?mode=day")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"title":"March 15, 2024"`)

	code, body = do(t, http.MethodPost, ts.URL+"/api/navigate?to=2024-12-25")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"title":"December 25, 2024"`)

	code, _ = do(t, http.MethodPost, ts.URL+"/api/navigate?to=someday")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodPost, ts.URL+"/api/mode?mode=year")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "mode")
}

func TestRefreshRemoteFailure(t *testing.T) {
	opts := testOptions()
	opts.QueryMode = calendar.QueryRemote
	opts.Loader = failingLoader{}
	_, ts := newServer(t, testConfig(), opts)

	code, body := do(t, http.MethodPost, ts.URL+"/api/refresh")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, "upstream unavailable")

	code, _ = do(t, http.MethodGet, ts.URL+"/api/view")
	assert.Equal(t, http.StatusBadGateway, code)

	_, metrics := do(t, http.MethodGet, ts.URL+"/metrics")
	assert.Contains(t, metrics, "calgrid_events_reload_errors_total 1")
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "s3cret"}
	_, ts := newServer(t, cfg, testOptions())

	code, _ := do(t, http.MethodGet, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("WWW-Authenticate"), "Basic"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/state", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestParseDate(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)

	got, err := parseDate("2024-03-15", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, loc)))

	got, err = parseDate("2024-03-15T01:00:00Z", loc)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Day())
	assert.Equal(t, 10, got.Hour())

	_, err = parseDate("", loc)
	assert.Error(t, err)
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(testConfig(), nil, nil)
	assert.Error(t, err)
}

type recordingLoader struct {
	mu    sync.Mutex
	spans []calendar.Range
}

// LoadEvents returns one event twenty days into the requested span.
func (l *recordingLoader) LoadEvents(_ context.Context, rng calendar.Range) ([]model.Event, error) {
	l.mu.Lock()
	l.spans = append(l.spans, rng)
	l.mu.Unlock()

	start := rng.StartTime.AddDate(0, 0, 20).Add(9 * time.Hour)
	return []model.Event{{
		Identifier: "ev-" + start.Format("2006-01-02"),
		Title:      "Loaded",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}}, nil
}

func (l *recordingLoader) calls() []calendar.Range {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]calendar.Range(nil), l.spans...)
}

func TestRemoteNavigationLoadsNewRange(t *testing.T) {
	loader := &recordingLoader{}
	opts := testOptions()
	opts.QueryMode = calendar.QueryRemote
	opts.Loader = loader
	s, ts := newServer(t, testConfig(), opts)
	require.NoError(t, s.Reload(context.Background()))
	require.Len(t, loader.calls(), 1)

	for i := 0; i < 2; i++ {
		code, _ := do(t, http.MethodPost, ts.URL+"/api/navigate?to=next")
		require.Equal(t, http.StatusOK, code)
	}

	calls := loader.calls()
	require.Len(t, calls, 3)
	// May 2024 grid starts on Sunday April 28.
	assert.True(t, calls[2].StartTime.Equal(time.Date(2024, time.April, 28, 0, 0, 0, 0, time.UTC)))

	_, body := do(t, http.MethodGet, ts.URL+"/api/state")
	assert.Contains(t, body, `"title":"May 2024"`)
	assert.Contains(t, body, `"identifier":"ev-2024-05-18"`)

	// Same range: nothing to fetch.
	code, _ := do(t, http.MethodPost, ts.URL+"/api/navigate?to=2024-05-20")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, loader.calls(), 3)

	code, body = do(t, http.MethodPost, ts.URL+"/api/mode?mode=day")
	require.Equal(t, http.StatusOK, code)
	calls = loader.calls()
	require.Len(t, calls, 4)
	assert.True(t, calls[3].StartTime.Equal(time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, body, `"title":"May 20, 2024"`)
}

func TestLocalNavigationDoesNotLoad(t *testing.T) {
	loader := &recordingLoader{}
	opts := testOptions()
	opts.Loader = loader
	_, ts := newServer(t, testConfig(), opts)

	code, _ := do(t, http.MethodPost, ts.URL+"/api/navigate?to=next")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, loader.calls())
}

func TestRemoteNavigationLoadFailure(t *testing.T) {
	opts := testOptions()
	opts.QueryMode = calendar.QueryRemote
	opts.Loader = failingLoader{}
	_, ts := newServer(t, testConfig(), opts)

	code, body := do(t, http.MethodPost, ts.URL+"/api/navigate?to=next")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, "upstream unavailable")

	_, state := do(t, http.MethodGet, ts.URL+"/api/state")
	assert.Contains(t, state, `"title":"April 2024"`)
}
