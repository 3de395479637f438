package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"speech-moderation-gateway/internal/config"
	"speech-moderation-gateway/internal/models"
	"speech-moderation-gateway/internal/session"
	"speech-moderation-gateway/internal/supervisor"
)

type fakeSupervisor struct {
	status         supervisor.Status
	current        string
	loading        string
	detectorActive bool
	moderation     atomic.Bool
	startErr       error
	models         []string
	starts         []string
}

func (f *fakeSupervisor) Start(_ context.Context, kind supervisor.Kind, modelID string) error {
	f.starts = append(f.starts, string(kind)+":"+modelID)
	if f.startErr != nil {
		return f.startErr
	}
	if kind == supervisor.KindDetector {
		f.detectorActive = true
	}
	return nil
}

func (f *fakeSupervisor) Status() supervisor.Status { return f.status }

func (f *fakeSupervisor) CurrentModel(supervisor.Kind) (string, bool) {
	return f.current, f.current != ""
}

func (f *fakeSupervisor) LoadingModel(supervisor.Kind) (string, bool) {
	return f.loading, f.loading != ""
}

func (f *fakeSupervisor) ChannelsFor(kind supervisor.Kind) (supervisor.Channels, bool) {
	if kind == supervisor.KindDetector {
		return supervisor.Channels{}, f.detectorActive
	}
	return supervisor.Channels{}, f.current != ""
}

func (f *fakeSupervisor) SetModerationEnabled(enabled bool) { f.moderation.Store(enabled) }
func (f *fakeSupervisor) ModerationRequested() bool         { return f.moderation.Load() }

func (f *fakeSupervisor) SupportedModels(supervisor.Kind) []string { return f.models }

type fakeHistory struct {
	items  []models.TranscriptionLog
	total  int
	filter models.HistoryFilter
	err    error
}

func (f *fakeHistory) List(_ context.Context, filter models.HistoryFilter) ([]models.TranscriptionLog, int, error) {
	f.filter = filter
	return f.items, f.total, f.err
}

type noopSessions struct{}

func (noopSessions) Handle(context.Context, session.Conn) {}

func newTestRouter(sup *fakeSupervisor, hist *fakeHistory) http.Handler {
	cfg := config.Load()
	return NewRouter(NewHandler(cfg, sup, hist, noopSessions{}))
}

func TestListModels(t *testing.T) {
	sup := &fakeSupervisor{models: []string{"pho-whisper-medium", "pho-whisper-small"}}
	router := newTestRouter(sup, &fakeHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var infos []modelInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "pho-whisper-medium" {
		t.Errorf("models = %+v", infos)
	}
	if infos[0].WorkflowType != models.WorkflowStreaming {
		t.Errorf("workflow = %q", infos[0].WorkflowType)
	}
}

func TestGetHistoryParsesFilters(t *testing.T) {
	hist := &fakeHistory{items: []models.TranscriptionLog{{SessionID: "s-1"}}, total: 1}
	router := newTestRouter(&fakeSupervisor{}, hist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/history?page=2&limit=10&search=xin&model=pho-whisper-small&min_latency=100&max_latency=900", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if hist.filter.Page != 2 || hist.filter.Limit != 10 || hist.filter.Search != "xin" {
		t.Errorf("filter = %+v", hist.filter)
	}
	if hist.filter.MinLatency == nil || *hist.filter.MinLatency != 100 {
		t.Errorf("min latency not parsed: %+v", hist.filter)
	}

	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestGetHistoryRejectsBadFilter(t *testing.T) {
	router := newTestRouter(&fakeSupervisor{}, &fakeHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history?min_latency=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestGetHistoryStoreError(t *testing.T) {
	router := newTestRouter(&fakeSupervisor{}, &fakeHistory{err: errors.New("db locked")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGetModelStatus(t *testing.T) {
	tests := []struct {
		name string
		sup  *fakeSupervisor
		want modelStatus
	}{
		{
			name: "ready",
			sup:  &fakeSupervisor{status: supervisor.StatusReady, current: "pho-whisper-small"},
			want: modelStatus{CurrentModel: "pho-whisper-small", IsLoaded: true, Status: "ready"},
		},
		{
			name: "loading reports the incoming model",
			sup:  &fakeSupervisor{status: supervisor.StatusLoading, current: "pho-whisper-small", loading: "pho-whisper-medium"},
			want: modelStatus{CurrentModel: "pho-whisper-medium", IsLoaded: false, Status: "loading"},
		},
		{
			name: "idle",
			sup:  &fakeSupervisor{status: supervisor.StatusIdle},
			want: modelStatus{Status: "idle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(tt.sup, &fakeHistory{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/models/status", nil))

			var got modelStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("status = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSwitchModel(t *testing.T) {
	sup := &fakeSupervisor{models: []string{"pho-whisper-small"}}
	router := newTestRouter(sup, &fakeHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/models/switch?model=pho-whisper-small", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("valid model: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/models/switch?model=unknown", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown model: status = %d, want 400", rec.Code)
	}
}

func TestModerationToggle(t *testing.T) {
	sup := &fakeSupervisor{}
	router := newTestRouter(sup, &fakeHistory{})

	// Enabling starts the detector.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/moderation/toggle?enabled=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp moderationToggleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Enabled || !resp.SpanDetectorActive {
		t.Errorf("toggle response = %+v", resp)
	}
	if len(sup.starts) != 1 || sup.starts[0] != "detector:"+config.Load().Moderation.Model {
		t.Errorf("starts = %v", sup.starts)
	}

	// Disabling keeps the detector alive.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/moderation/toggle?enabled=false", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Enabled || !resp.SpanDetectorActive {
		t.Errorf("disable response = %+v", resp)
	}
}

func TestModerationToggleDetectorFailure(t *testing.T) {
	sup := &fakeSupervisor{startErr: errors.New("spawn failed")}
	router := newTestRouter(sup, &fakeHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/moderation/toggle?enabled=true", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if sup.ModerationRequested() {
		t.Error("flag must not be set when the detector cannot start")
	}
}

func TestModerationStatus(t *testing.T) {
	sup := &fakeSupervisor{detectorActive: true}
	sup.SetModerationEnabled(true)
	router := newTestRouter(sup, &fakeHistory{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/moderation/status", nil))

	var resp moderationStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Enabled || !resp.SpanDetectorActive {
		t.Errorf("status = %+v", resp)
	}
}
