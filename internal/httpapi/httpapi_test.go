// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/matrixctl/internal/config"
	"github.com/Thermoquad/matrixctl/internal/router"
	"github.com/Thermoquad/matrixctl/pkg/purelink"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type recordingTransport struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingTransport) SendLine(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	return nil
}

func (r *recordingTransport) Connected() bool { return true }

func (r *recordingTransport) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, line := range r.lines {
			if line == want {
				r.mu.Unlock()
				return
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%q never sent", want)
}

func newTestEngine(t *testing.T) (*gin.Engine, *router.Device, *recordingTransport) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tr := &recordingTransport{}
	dev := router.New(zap.NewNop(), router.Options{
		Key:          "hall",
		DeviceID:     "255",
		GateDebounce: 50 * time.Millisecond,
		Inputs:       []config.EntryConfig{{Index: 5, Name: "Laptop"}},
		Outputs:      []config.EntryConfig{{Index: 1, Name: "Projector"}, {Index: 2, Name: "Monitor"}},
	}, tr)
	dev.Start(context.Background())
	t.Cleanup(dev.Close)

	return NewEngine(zap.NewNop(), dev, Options{}), dev, tr
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ============================================================
// Read Endpoints
// ============================================================

func TestPingAndRequestID(t *testing.T) {
	r, _, _ := newTestEngine(t)

	w := do(r, http.MethodGet, "/api/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Fatalf("ping = %d %s", w.Code, w.Body.String())
	}
	if id := w.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated request id = %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request id = %q, want client supplied", got)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers missing: %v", w.Header())
	}
}

func TestGetOutputs(t *testing.T) {
	r, dev, _ := newTestEngine(t)
	dev.HandleLine("*255sVCI05O02")

	w := do(r, http.MethodGet, "/api/outputs", "")
	if w.Code != http.StatusOK || w.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("outputs = %d count %q", w.Code, w.Header().Get("X-Total-Count"))
	}
	var outputs []router.OutputState
	if err := json.Unmarshal(w.Body.Bytes(), &outputs); err != nil {
		t.Fatal(err)
	}
	if outputs[1].CurrentVideo != 5 || outputs[1].CurrentVideoName != "Laptop" {
		t.Errorf("output 2 = %+v", outputs[1])
	}

	tests := []struct {
		path string
		code int
	}{
		{"/api/outputs/1", http.StatusOK},
		{"/api/outputs/9", http.StatusNotFound},
		{"/api/outputs/0", http.StatusBadRequest},
		{"/api/outputs/abc", http.StatusBadRequest},
		{"/api/outputs/200", http.StatusBadRequest},
		{"/api/inputs", http.StatusOK},
		{"/api/status", http.StatusOK},
	}
	for _, tt := range tests {
		if w := do(r, http.MethodGet, tt.path, ""); w.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.code)
		}
	}
}

// ============================================================
// Routing Endpoints
// ============================================================

func TestRouteOutput(t *testing.T) {
	r, _, tr := newTestEngine(t)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"accepted", "/api/outputs/1/route", `{"input":5,"signal":"video"}`, http.StatusAccepted},
		{"default signal", "/api/outputs/2/route", `{"input":999}`, http.StatusAccepted},
		{"missing input", "/api/outputs/1/route", `{"signal":"video"}`, http.StatusBadRequest},
		{"input out of range", "/api/outputs/1/route", `{"input":80}`, http.StatusBadRequest},
		{"bad signal", "/api/outputs/1/route", `{"input":5,"signal":"usb"}`, http.StatusBadRequest},
		{"unknown output", "/api/outputs/7/route", `{"input":5}`, http.StatusNotFound},
		{"bad json", "/api/outputs/1/route", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(r, http.MethodPut, tt.path, tt.body); w.Code != tt.code {
				t.Errorf("code = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
		})
	}

	w := do(r, http.MethodPut, "/api/gates/av", `{"open":true}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"open":true`) {
		t.Fatalf("gate = %d %s", w.Code, w.Body.String())
	}
	tr.waitFor(t, "*255VCI05O01!\r")
	tr.waitFor(t, "*255CI00O02!\r")
}

func TestGateAndToggleValidation(t *testing.T) {
	r, dev, _ := newTestEngine(t)

	if w := do(r, http.MethodPut, "/api/gates/usb", `{"open":true}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad signal = %d", w.Code)
	}
	if w := do(r, http.MethodPut, "/api/gates/video", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing open = %d", w.Code)
	}

	w := do(r, http.MethodPut, "/api/audio-follows-video", `{"enabled":true}`)
	if w.Code != http.StatusOK || !dev.AudioFollowsVideo() {
		t.Errorf("afv = %d %v", w.Code, dev.AudioFollowsVideo())
	}
	if w := do(r, http.MethodPut, "/api/audio-follows-video", `{"enabled":"yes"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad toggle = %d", w.Code)
	}
}

func TestPollAndClear(t *testing.T) {
	r, _, tr := newTestEngine(t)

	for path, want := range map[string]string{
		"/api/poll/video": "*255?VO02!\r",
		"/api/poll/audio": "*255?AO01!\r",
		"/api/clear/video": "*255VDALLIO!\r",
		"/api/clear/all":   "*255DALLIO!\r",
	} {
		if w := do(r, http.MethodPost, path, ""); w.Code != http.StatusAccepted {
			t.Errorf("POST %s = %d", path, w.Code)
		}
		tr.waitFor(t, want)
	}

	if w := do(r, http.MethodPost, "/api/poll", ""); w.Code != http.StatusAccepted {
		t.Errorf("POST /api/poll = %d", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/clear/usb", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad clear = %d", w.Code)
	}
}

func TestClosedDevice(t *testing.T) {
	r, dev, _ := newTestEngine(t)
	dev.Close()

	if w := do(r, http.MethodPut, "/api/outputs/1/route", `{"input":5}`); w.Code != http.StatusServiceUnavailable {
		t.Errorf("route = %d, want 503", w.Code)
	}
	if w := do(r, http.MethodPost, "/api/poll", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("poll = %d, want 503", w.Code)
	}
}

// ============================================================
// Event Stream
// ============================================================

func TestStreamEvents(t *testing.T) {
	r, dev, _ := newTestEngine(t)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Snapshot: connected, online, afv, one input name, and three per output.
	snapshot := 3 + 1 + 2*3
	for i := 0; i < snapshot; i++ {
		var e router.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("snapshot event %d: %v", i, err)
		}
		if e.Device != "hall" {
			t.Errorf("event device = %q", e.Device)
		}
	}

	dev.HandleLine("*255s?VI05O01")
	for {
		var e router.Event
		if err := conn.ReadJSON(&e); err != nil {
			t.Fatalf("route event: %v", err)
		}
		if e.Kind != router.EventVideoRoute {
			continue
		}
		if e.Index != 1 || e.Value != 5 || e.Name != "Laptop" {
			t.Errorf("route event = %+v", e)
		}
		break
	}

	if dev.GateOpen(purelink.SignalVideo) {
		t.Error("gate opened by event stream")
	}
}
