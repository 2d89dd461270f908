package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/domain/captions"
	"github.com/forPelevin/shortify/internal/domain/windows"
	"github.com/forPelevin/shortify/internal/jobs"
	"github.com/forPelevin/shortify/internal/ports/adapters/jobstore"
	"github.com/forPelevin/shortify/internal/types"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, types.JobRecord) error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		Jobs:         jobs.NewManager(jobstore.NewMemory(), nopDispatcher{}, nil, nil),
		Captions:     captions.DefaultConfig(),
		Windows:      windows.Config{MinClipSec: 5, MaxClipSec: 10, MaxClipCount: 3, MinGapBetweenClipsSec: 1},
		AllowOrigins: []string{"http://localhost:5173"},
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestRouter(t), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestJobsLifecycle(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/jobs", types.JobRequest{
		Transcript: &types.Transcript{Text: "hello there world", DurationSec: 30},
		Style:      types.StyleRequest{Preset: "tiktok"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var submitted struct {
		Job types.JobRecord `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Job.ID)
	require.Equal(t, types.JobQueued, submitted.Job.Status)

	w = do(t, r, http.MethodGet, "/v1/jobs/"+submitted.Job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/v1/jobs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Jobs []types.JobRecord `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Jobs, 1)

	w = do(t, r, http.MethodPost, "/v1/jobs/"+submitted.Job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cancelled struct {
		Job types.JobRecord `json:"job"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	require.True(t, cancelled.Job.CancelRequested)
}

func TestJobsErrors(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   apperr.Kind
	}{
		{name: "unknown job", method: http.MethodGet, path: "/v1/jobs/nope", status: http.StatusNotFound, kind: apperr.KindNotFound},
		{name: "cancel unknown job", method: http.MethodPost, path: "/v1/jobs/nope/cancel", status: http.StatusNotFound, kind: apperr.KindNotFound},
		{name: "empty request", method: http.MethodPost, path: "/v1/jobs", body: map[string]any{}, status: http.StatusBadRequest, kind: apperr.KindInvalidArgument},
		{name: "bad style", method: http.MethodPost, path: "/v1/jobs", body: map[string]any{
			"transcript": map[string]any{"text": "hi", "durationSec": 3},
			"style":      map[string]any{"animation": "wobble"},
		}, status: http.StatusUnprocessableEntity, kind: apperr.KindUnknownStyleToken},
		{name: "bad limit", method: http.MethodGet, path: "/v1/jobs?limit=x", status: http.StatusBadRequest, kind: apperr.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, r, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.Equal(t, string(tc.kind), body.Kind)
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestSegmentCaptions(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/captions/segment", map[string]any{
		"transcript": types.Transcript{
			Text: "Hello world. Bye now.",
			Words: []types.Word{
				{Text: "Hello", StartSec: 0, EndSec: 0.4},
				{Text: "world.", StartSec: 0.4, EndSec: 0.9},
				{Text: "Bye", StartSec: 1.2, EndSec: 1.5},
				{Text: "now.", StartSec: 1.5, EndSec: 2},
			},
			DurationSec: 2,
		},
		"config": captions.Config{MaxSegmentChars: 12, MaxSegmentWords: 9, MaxSegmentDurationSec: 5},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Timing   types.TimingSource     `json:"timing"`
		Segments []types.CaptionSegment `json:"segments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, types.TimingASR, out.Timing)
	require.Len(t, out.Segments, 2)
	require.Equal(t, "Hello world.", out.Segments[0].Text)
	require.Equal(t, "Bye now.", out.Segments[1].Text)

	w = do(t, r, http.MethodPost, "/v1/captions/segment", map[string]any{"transcript": map[string]any{"text": "  ", "durationSec": 10}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), string(apperr.KindEmptyTranscript))
}

func TestWindowClips(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/clips/window", map[string]any{
		"durationSec": 60,
		"spans": []types.ScoredSpan{
			{StartSec: 10, EndSec: 16, Confidence: 0.9, Type: types.SpanHook},
			{StartSec: 12, EndSec: 18, Confidence: 0.5},
			{StartSec: 40, EndSec: 46, Confidence: 0.7},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		Clips []types.ClipWindow `json:"clips"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Clips, 2)
	require.Equal(t, "001", out.Clips[0].ID)
	require.InDelta(t, 10, out.Clips[0].StartSec, 1e-9)
	require.Equal(t, "002", out.Clips[1].ID)

	w = do(t, r, http.MethodPost, "/v1/clips/window", map[string]any{"durationSec": 0, "spans": []any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), string(apperr.KindInvalidDuration))
}

func TestStyles(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/styles/resolve", types.StyleRequest{Preset: "bold", Position: "top"})
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Style types.StyleDescriptor `json:"style"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, "top", out.Style.Position)
	require.Equal(t, "pop", out.Style.Animation)

	w = do(t, r, http.MethodPost, "/v1/styles/resolve", types.StyleRequest{Preset: "vaporwave"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, r, http.MethodGet, "/v1/styles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tokens struct {
		Presets    []string                         `json:"presets"`
		Animations []string                         `json:"animations"`
		Positions  []string                         `json:"positions"`
		Defaults   map[string]types.StyleDescriptor `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokens))
	require.Contains(t, tokens.Presets, "tiktok")
	require.Contains(t, tokens.Animations, "karaoke")
	require.Equal(t, []string{"top", "center", "bottom"}, tokens.Positions)
	require.Len(t, tokens.Defaults, len(tokens.Presets))
	require.Equal(t, "karaoke", tokens.Defaults["tiktok"].Animation)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadGateway, statusFor(apperr.KindProviderUnavailable))
	require.Equal(t, http.StatusConflict, statusFor(apperr.KindCancelled))
	require.Equal(t, http.StatusInternalServerError, statusFor(""))
}
