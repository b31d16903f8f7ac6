package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/octoctl/internal/bed"
	"github.com/chaz8081/octoctl/internal/octo"
)

// stubControl is a canned bed.Control for handler tests.
type stubControl struct {
	mu        sync.Mutex
	connected bool
	address   string
	head      int
	feet      int

	sent     []octo.Intent
	moves    []bed.Group
	stops    int
	returned []time.Duration

	calPart    bed.Part
	calElapsed time.Duration
	calErr     error
}

func (c *stubControl) Connect(ctx context.Context) error         { return nil }
func (c *stubControl) Disconnect() error                         { return nil }
func (c *stubControl) EnsureConnected(ctx context.Context) error { return nil }
func (c *stubControl) IsConnected() bool                         { return c.connected }
func (c *stubControl) Address() string                           { return c.address }

func (c *stubControl) Send(ctx context.Context, intent octo.Intent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, intent)
	return nil
}

func (c *stubControl) MoveTo(ctx context.Context, group bed.Group, target int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, group)
	return nil
}

func (c *stubControl) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	return nil
}

func (c *stubControl) HeadPosition() int                    { return c.head }
func (c *stubControl) FeetPosition() int                    { return c.feet }
func (c *stubControl) BothPosition() int                    { return (c.head + c.feet) / 2 }
func (c *stubControl) SubscribePosition(func(bed.Part, int)) {}

func (c *stubControl) StartCalibration(ctx context.Context, part bed.Part) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calPart = part
	return nil
}

func (c *stubControl) CompleteCalibration(ctx context.Context) (bed.Part, time.Duration, error) {
	return c.calPart, c.calElapsed, c.calErr
}

func (c *stubControl) ReturnToZero(ctx context.Context, part bed.Part, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.returned = append(c.returned, d)
	return nil
}

func (c *stubControl) CalibrationStatus() (bed.CalState, bed.Part) { return bed.CalIdle, bed.PartHead }
func (c *stubControl) SubscribeCalibrationState(func())            {}
func (c *stubControl) Travel() bed.TravelConfig {
	return bed.TravelConfig{Head: 30 * time.Second, Feet: 30 * time.Second}
}
func (c *stubControl) SetTravel(bed.TravelConfig) error { return nil }

var _ bed.Control = (*stubControl)(nil)

func newTestServer(t *testing.T) (*httptest.Server, *stubControl) {
	t.Helper()
	ctrl := &stubControl{connected: true, address: "AA:BB:CC:DD:EE:FF", head: 40, feet: 20}
	srv := New([]Unit{{Name: "primary", Control: ctrl}}, ctrl, false)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, ctrl
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	h := decode[HealthResponse](t, resp)
	if !h.OK {
		t.Error("health OK = false")
	}
}

func TestStatus(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	st := decode[StatusResponse](t, resp)
	if len(st.Beds) != 1 {
		t.Fatalf("beds = %d, want 1", len(st.Beds))
	}
	b := st.Beds[0]
	if b.Name != "primary" || !b.Connected || b.HeadPosition != 40 || b.FeetPosition != 20 {
		t.Errorf("status = %+v", b)
	}
	if b.CalibrationState != "idle" {
		t.Errorf("calibration state = %q, want idle", b.CalibrationState)
	}
}

func TestCommand(t *testing.T) {
	ts, ctrl := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/command", CommandRequest{Action: "head_up"})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.sent) != 1 || ctrl.sent[0] != octo.IntentHeadUp {
		t.Errorf("sent = %v, want [head_up]", ctrl.sent)
	}
}

func TestCommandUnknownAction(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/command", CommandRequest{Action: "wiggle"})
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCommandUnknownBed(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/command", CommandRequest{Bed: "ghost", Action: "stop"})
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestMove(t *testing.T) {
	ts, ctrl := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/move", MoveRequest{Group: "head", Position: 80})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// The move runs in the background.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ctrl.mu.Lock()
		n := len(ctrl.moves)
		ctrl.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.moves) != 1 || ctrl.moves[0] != bed.GroupHead {
		t.Errorf("moves = %v, want [head]", ctrl.moves)
	}
}

func TestMoveValidatesInput(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/move", MoveRequest{Group: "sideways", Position: 50})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("bad group status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/move", MoveRequest{Group: "head", Position: 150})
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("bad position status = %d, want 400", resp.StatusCode)
	}
}

func TestStop(t *testing.T) {
	ts, ctrl := newTestServer(t)
	resp := postJSON(t, ts.URL+"/api/stop", struct{}{})
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.stops != 1 {
		t.Errorf("stops = %d, want 1", ctrl.stops)
	}
}

func TestCalibrationFlow(t *testing.T) {
	ts, ctrl := newTestServer(t)
	ctrl.calElapsed = 15 * time.Second

	resp := postJSON(t, ts.URL+"/api/calibration/start", CalStartRequest{Part: "feet"})
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/calibration/complete", struct{}{})
	if resp.StatusCode != 200 {
		t.Fatalf("complete status = %d, want 200", resp.StatusCode)
	}
	out := decode[CalCompleteResponse](t, resp)
	if out.Part != "feet" || out.ElapsedSeconds != 15 {
		t.Errorf("complete = %+v, want feet/15s", out)
	}

	// Return-to-zero runs after the response.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ctrl.mu.Lock()
		n := len(ctrl.returned)
		ctrl.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if len(ctrl.returned) != 1 || ctrl.returned[0] != 15*time.Second {
		t.Errorf("returned = %v, want [15s]", ctrl.returned)
	}
}

func TestCalibrationCompleteWithoutStart(t *testing.T) {
	ts, ctrl := newTestServer(t)
	ctrl.calErr = bed.ErrNoActiveCalibration

	resp := postJSON(t, ts.URL+"/api/calibration/complete", struct{}{})
	defer resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
