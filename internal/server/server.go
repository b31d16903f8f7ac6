// Package server exposes the bed engine over a local HTTP API with a
// WebSocket event stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chaz8081/octoctl/internal/bed"
	"github.com/chaz8081/octoctl/internal/octo"
)

// Unit is one addressable control target: a named physical bed.
type Unit struct {
	Name    string
	Control bed.Control
}

// Server routes the HTTP API onto the bed engine. Requests without a bed
// name hit the default target, which is the aggregate in combined mode and
// the first bed otherwise.
type Server struct {
	mux *http.ServeMux
	hub *WSHub

	units    []Unit
	byName   map[string]bed.Control
	target   bed.Control
	combined bool
}

// New builds the server and wires engine events into the WebSocket hub.
func New(units []Unit, target bed.Control, combined bool) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		hub:      NewWSHub(),
		units:    units,
		byName:   make(map[string]bed.Control, len(units)),
		target:   target,
		combined: combined,
	}
	for _, u := range units {
		s.byName[u.Name] = u.Control
		s.watch(u)
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/connect", s.handleConnect)
	s.mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	s.mux.HandleFunc("/api/command", s.handleCommand)
	s.mux.HandleFunc("/api/move", s.handleMove)
	s.mux.HandleFunc("/api/stop", s.handleStop)
	s.mux.HandleFunc("/api/calibration/start", s.handleCalStart)
	s.mux.HandleFunc("/api/calibration/complete", s.handleCalComplete)
	s.mux.HandleFunc("/ws", s.handleWS)

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// watch forwards one bed's position and calibration transitions to the
// event stream.
func (s *Server) watch(u Unit) {
	name := u.Name
	ctrl := u.Control
	ctrl.SubscribePosition(func(part bed.Part, pct int) {
		s.hub.Broadcast(WSMessage{Type: "position", Data: map[string]any{
			"bed":      name,
			"part":     part.String(),
			"position": pct,
		}})
	})
	ctrl.SubscribeCalibrationState(func() {
		state, part := ctrl.CalibrationStatus()
		s.hub.Broadcast(WSMessage{Type: "calibration", Data: map[string]any{
			"bed":   name,
			"state": state.String(),
			"part":  part.String(),
		}})
	})
}

// resolve picks the control a request addresses. An empty name means the
// default target.
func (s *Server) resolve(name string) (bed.Control, error) {
	if name == "" {
		return s.target, nil
	}
	ctrl, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown bed %q", name)
	}
	return ctrl, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, HealthResponse{OK: true, Timestamp: time.Now()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	resp := StatusResponse{Combined: s.combined, Beds: make([]BedStatus, 0, len(s.units))}
	for _, u := range s.units {
		c := u.Control
		state, part := c.CalibrationStatus()
		st := BedStatus{
			Name:             u.Name,
			Address:          c.Address(),
			Connected:        c.IsConnected(),
			HeadPosition:     c.HeadPosition(),
			FeetPosition:     c.FeetPosition(),
			BothPosition:     c.BothPosition(),
			CalibrationState: state.String(),
			HeadTravelSecs:   c.Travel().Head.Seconds(),
			FeetTravelSecs:   c.Travel().Feet.Seconds(),
		}
		if state != bed.CalIdle {
			st.CalibrationPart = part.String()
		}
		resp.Beds = append(resp.Beds, st)
	}
	s.writeJSON(w, 200, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.target.EnsureConnected(r.Context()); err != nil {
		s.writeJSON(w, 502, APIError{Error: err.Error()})
		return
	}
	s.hub.Broadcast(WSMessage{Type: "connection", Data: map[string]any{"connected": true}})
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := s.target.Disconnect(); err != nil {
		s.writeJSON(w, 500, APIError{Error: err.Error()})
		return
	}
	s.hub.Broadcast(WSMessage{Type: "connection", Data: map[string]any{"connected": false}})
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CommandRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	ctrl, err := s.resolve(req.Bed)
	if err != nil {
		s.writeJSON(w, 404, APIError{Error: err.Error()})
		return
	}
	intent, err := parseAction(req.Action)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := ctrl.Send(r.Context(), intent); err != nil {
		s.writeJSON(w, 502, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req MoveRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	ctrl, err := s.resolve(req.Bed)
	if err != nil {
		s.writeJSON(w, 404, APIError{Error: err.Error()})
		return
	}
	group, err := bed.ParseGroup(req.Group)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if req.Position < 0 || req.Position > 100 {
		s.writeJSON(w, 400, APIError{Error: fmt.Sprintf("position %d out of range 0-100", req.Position)})
		return
	}

	// The move runs for up to the full-travel time; progress streams over
	// the WebSocket while the request returns immediately.
	go func() {
		if err := ctrl.MoveTo(context.Background(), group, req.Position); err != nil {
			slog.Warn("[api] move failed", "group", group.String(), "error", err)
			s.hub.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
		}
	}()
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CommandRequest
	// Body is optional for stop.
	_ = s.readJSON(r, &req)
	ctrl, err := s.resolve(req.Bed)
	if err != nil {
		s.writeJSON(w, 404, APIError{Error: err.Error()})
		return
	}
	if err := ctrl.Stop(r.Context()); err != nil {
		s.writeJSON(w, 502, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleCalStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CalStartRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	ctrl, err := s.resolve(req.Bed)
	if err != nil {
		s.writeJSON(w, 404, APIError{Error: err.Error()})
		return
	}
	part, err := bed.ParsePart(req.Part)
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}
	if err := ctrl.StartCalibration(r.Context(), part); err != nil {
		s.writeJSON(w, 502, APIError{Error: err.Error()})
		return
	}
	s.writeJSON(w, 200, OKResponse{OK: true})
}

func (s *Server) handleCalComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req CommandRequest
	_ = s.readJSON(r, &req)
	ctrl, err := s.resolve(req.Bed)
	if err != nil {
		s.writeJSON(w, 404, APIError{Error: err.Error()})
		return
	}
	part, elapsed, err := ctrl.CompleteCalibration(r.Context())
	if err != nil {
		s.writeJSON(w, 400, APIError{Error: err.Error()})
		return
	}

	// Lowering back to flat takes as long as the measurement; run it after
	// the response so the client gets the result immediately.
	go func() {
		if err := ctrl.ReturnToZero(context.Background(), part, elapsed); err != nil {
			slog.Warn("[api] return to zero failed", "part", part.String(), "error", err)
			s.hub.Broadcast(WSMessage{Type: "error", Data: map[string]string{"error": err.Error()}})
		}
	}()

	s.writeJSON(w, 200, CalCompleteResponse{
		Part:           part.String(),
		ElapsedSeconds: elapsed.Seconds(),
	})
}

// parseAction maps an API action name to its command intent.
func parseAction(action string) (octo.Intent, error) {
	switch action {
	case "head_up":
		return octo.IntentHeadUp, nil
	case "head_down":
		return octo.IntentHeadDown, nil
	case "feet_up":
		return octo.IntentFeetUp, nil
	case "feet_down":
		return octo.IntentFeetDown, nil
	case "both_up":
		return octo.IntentBothUp, nil
	case "both_down":
		return octo.IntentBothDown, nil
	case "stop":
		return octo.IntentStop, nil
	case "light_on":
		return octo.IntentLightOn, nil
	case "light_off":
		return octo.IntentLightOff, nil
	default:
		return 0, fmt.Errorf("unknown action %q", action)
	}
}
