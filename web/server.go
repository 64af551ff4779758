// Package web serves the browser inspector for the HRTF preview: the source
// direction, the entry list, live meters and the interpolated responses.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hrtfkit/dsp"
	"hrtfkit/internal/preview"
)

// ErrUnsupportedPlatform is returned when browser opening is not supported.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

//go:embed static/*
var staticFiles embed.FS

// Controller is the preview state the server reads and changes.
type Controller interface {
	Source() dsp.Source
	SetSource(src dsp.Source)
	Entries() []preview.EntryInfo
	Current() (int, string)
	SelectHRTF(index int) error
	Coefficients() preview.Coefficients
	Levels() preview.Levels
}

// Message represents a WebSocket message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// SourcePayload is the source direction in degrees.
type SourcePayload struct {
	Elevation float64 `json:"elevation"`
	Azimuth   float64 `json:"azimuth"`
	Spread    float64 `json:"spread"`
	Gain      float64 `json:"gain"`
}

// StatePayload represents the current state.
type StatePayload struct {
	Source    SourcePayload `json:"source"`
	HRTFIndex int           `json:"hrtfIndex"`
	HRTFName  string        `json:"hrtfName"`
}

// HelloPayload is sent once to each new client.
type HelloPayload struct {
	ClientID string `json:"clientId"`
}

// SelectPayload selects an HRTF entry.
type SelectPayload struct {
	Index int `json:"index"`
}

const rad = 180 / math.Pi

func toPayload(src dsp.Source) SourcePayload {
	return SourcePayload{
		Elevation: float64(src.Elevation) * rad,
		Azimuth:   float64(src.Azimuth) * rad,
		Spread:    float64(src.Spread) * rad,
		Gain:      float64(src.Gain),
	}
}

func (p SourcePayload) source() dsp.Source {
	return dsp.Source{
		Elevation: float32(p.Elevation / rad),
		Azimuth:   float32(p.Azimuth / rad),
		Spread:    float32(p.Spread / rad),
		Gain:      float32(p.Gain),
	}
}

// Server is the web server for the preview inspector.
type Server struct {
	ctrl   Controller
	addr   string
	hub    *Hub
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool

	stop chan struct{}
}

// NewServer creates a server for ctrl listening on addr.
func NewServer(ctrl Controller, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		ctrl:   ctrl,
		addr:   addr,
		hub:    NewHub(logger),
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Handler returns the HTTP routes. The hub must be running for WebSocket
// clients to be served.
func (s *Server) Handler() (http.Handler, error) {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to create static file system: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/state", s.handleAPIState)
	mux.HandleFunc("GET /api/hrtf-list", s.handleAPIHRTFList)
	mux.HandleFunc("GET /api/coeffs", s.handleAPICoeffs)

	return mux, nil
}

// Start runs the hub and serves HTTP until Shutdown. It returns nil at once
// if Shutdown already ran.
func (s *Server) Start() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	go s.hub.Run()
	go s.meterBroadcastLoop()

	s.logger.Info("Web server starting", "addr", s.addr)

	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. Later calls do nothing.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	close(s.stop)
	s.hub.Stop()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleIndex serves the main HTML page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // local tool
	},
}

// handleWebSocket handles WebSocket connections.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	client := newClient(s.hub, conn)
	if !s.hub.add(client) {
		s.logger.Warn("WebSocket client rejected, server stopping", "client", client.id)
		_ = conn.Close()
		return
	}

	// Initial state
	s.send(client, "hello", HelloPayload{ClientID: client.id})
	s.send(client, "state", s.state())
	s.send(client, "hrtf_list", s.ctrl.Entries())

	go client.writePump()
	client.readPump(s.handleClientMessage)
}

func (s *Server) state() StatePayload {
	idx, name := s.ctrl.Current()
	return StatePayload{
		Source:    toPayload(s.ctrl.Source()),
		HRTFIndex: idx,
		HRTFName:  name,
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	return json.Marshal(outMessage{Type: msgType, Payload: payload})
}

// send queues a message for one client.
func (s *Server) send(client *Client, msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		s.logger.Error("Failed to marshal message", "type", msgType, "error", err)
		return
	}

	if !s.hub.SendTo(client, data) {
		s.logger.Warn("Client gone or queue full, dropping message", "client", client.id, "type", msgType)
	}
}

func (s *Server) broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		s.logger.Error("Failed to marshal message", "type", msgType, "error", err)
		return
	}
	s.hub.Broadcast(data)
}

// handleClientMessage handles incoming WebSocket messages.
func (s *Server) handleClientMessage(client *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Error("Failed to parse WebSocket message", "client", client.id, "error", err)
		return
	}

	switch msg.Type {
	case "set_source":
		var p SourcePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.logger.Error("Invalid set_source payload", "client", client.id, "error", err)
			return
		}
		// Broadcast happens through OnSourceChange.
		s.ctrl.SetSource(p.source())

	case "set_hrtf":
		var p SelectPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.logger.Error("Invalid set_hrtf payload", "client", client.id, "error", err)
			return
		}
		if err := s.ctrl.SelectHRTF(p.Index); err != nil {
			s.logger.Error("Failed to switch HRTF", "index", p.Index, "error", err)
			s.send(client, "error", map[string]string{"message": err.Error()})
		}

	case "get_coeffs":
		s.send(client, "coeffs", s.ctrl.Coefficients())

	default:
		s.logger.Warn("Unknown WebSocket message", "client", client.id, "type", msg.Type)
	}
}

// meterBroadcastLoop broadcasts meter values at 50ms intervals.
func (s *Server) meterBroadcastLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		if s.hub.ClientCount() == 0 {
			continue
		}

		s.broadcast("meters", s.ctrl.Levels())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// handleAPIState handles the REST API state endpoint.
func (s *Server) handleAPIState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.state())
}

// handleAPIHRTFList handles the REST API entry list endpoint.
func (s *Server) handleAPIHRTFList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ctrl.Entries())
}

// handleAPICoeffs returns the current interpolated responses.
func (s *Server) handleAPICoeffs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ctrl.Coefficients())
}

// OnSourceChange implements preview.StateListener.
func (s *Server) OnSourceChange(src dsp.Source) {
	s.broadcast("source_changed", toPayload(src))
	s.broadcast("coeffs", s.ctrl.Coefficients())
}

// OnHRTFChange implements preview.StateListener.
func (s *Server) OnHRTFChange(index int, name string) {
	s.broadcast("hrtf_changed", map[string]any{"index": index, "name": name})
	s.broadcast("coeffs", s.ctrl.Coefficients())
}

// OpenBrowser opens the default browser to the specified URL.
func OpenBrowser(url string) error {
	ctx := context.Background()
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, runtime.GOOS)
	}

	return cmd.Start()
}
