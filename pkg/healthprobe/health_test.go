package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNew(t *testing.T) {
	hc := New()

	assert.WithinDuration(t, time.Now(), hc.startTime, time.Second)
	ok, failing := hc.IsReady()
	assert.False(t, ok, "not ready by default")
	assert.Contains(t, failing, "startup")
}

func TestHealth_AlwaysOK(t *testing.T) {
	hc := New()

	rec := httptest.NewRecorder()
	hc.Health()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode(t, rec).Status)
}

func TestReady(t *testing.T) {
	feedUp := false

	hc := New()
	hc.AddCheck("feed", func() (bool, string) {
		if feedUp {
			return true, ""
		}
		return false, "feed is DOWN"
	})

	tests := []struct {
		name     string
		started  bool
		feedUp   bool
		wantCode int
		wantMsg  string
	}{
		{"starting", false, true, http.StatusServiceUnavailable, "application is starting"},
		{"feed down", true, false, http.StatusServiceUnavailable, "feed is DOWN"},
		{"ready", true, true, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetReady(tt.started)
			feedUp = tt.feedUp

			rec := httptest.NewRecorder()
			hc.Ready()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			resp := decode(t, rec)
			assert.Equal(t, tt.wantMsg, resp.Message)
		})
	}
}
