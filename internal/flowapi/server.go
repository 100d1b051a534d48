// Package flowapi exposes the dataflow runtime over HTTP/JSON and
// server-sent events.
package flowapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"Flowgraph-Apps/internal/agents"
	"Flowgraph-Apps/internal/core/flow"
	"Flowgraph-Apps/internal/core/network"
	"Flowgraph-Apps/internal/eventbus"
	"Flowgraph-Apps/internal/flowconfig"
	"Flowgraph-Apps/internal/graphview"
	"Flowgraph-Apps/internal/logging"
)

const defaultEventLimit = 50

type Server struct {
	reg     *flow.Registry
	catalog *agents.Catalog
	bus     *eventbus.Bus
	log     logging.Logger
	loader  []flowconfig.Option
	peers   network.PeerInfo
	nodeID  string
	schemas *schemas

	mu     sync.Mutex
	active flowconfig.Config
}

type Option func(*Server)

func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLoaderOptions is applied to every config loaded over HTTP.
func WithLoaderOptions(opts ...flowconfig.Option) Option {
	return func(s *Server) {
		s.loader = append(s.loader, opts...)
	}
}

// WithRelay reports the event relay on /api/relay.
func WithRelay(nodeID string, peers network.PeerInfo) Option {
	return func(s *Server) {
		s.nodeID = nodeID
		s.peers = peers
	}
}

func NewServer(reg *flow.Registry, catalog *agents.Catalog, bus *eventbus.Bus, opts ...Option) (*Server, error) {
	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		reg:     reg,
		catalog: catalog,
		bus:     bus,
		log:     logging.Nop{},
		schemas: sch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/config/load", s.handleLoad)
	mux.HandleFunc("/api/config/unload", s.handleUnload)
	mux.HandleFunc("/api/topics", s.handleTopics)
	mux.HandleFunc("/api/topics/", s.handleTopic)
	mux.HandleFunc("/api/graph", s.handleGraph)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/events/stream", s.handleStream)
	mux.HandleFunc("/api/relay", s.handleRelay)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// Handler returns the API on a fresh mux, instrumented with OpenTelemetry.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return otelhttp.NewHandler(mux, "flowgraph")
}

// Load replaces the active config with one parsed from text and returns the
// sorted topic names. On error the registry is left empty.
func (s *Server) Load(ctx context.Context, text string) ([]string, error) {
	return s.Install(ctx, flowconfig.NewGeneric(s.reg, s.catalog, text, s.loader...))
}

// Install closes the active config, clears the registry and creates cfg.
func (s *Server) Install(ctx context.Context, cfg flowconfig.Config) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
	if err := cfg.Create(ctx); err != nil {
		if cerr := cfg.Close(); cerr != nil {
			s.log.Warn("close failed config", "config", cfg.Name(), "error", cerr)
		}
		s.reg.Clear()
		s.log.Warn("config load failed", "config", cfg.Name(), "error", err)
		return nil, err
	}
	s.active = cfg
	topics := s.reg.Names()
	s.log.Info("config loaded", "config", cfg.Name(), "topics", len(topics))
	return topics, nil
}

// Unload closes the active config and clears the registry.
func (s *Server) Unload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unloadLocked()
}

func (s *Server) unloadLocked() {
	if s.active != nil {
		if err := s.active.Close(); err != nil {
			s.log.Warn("config close failed", "config", s.active.Name(), "error", err)
		}
		s.log.Info("config unloaded", "config", s.active.Name())
		s.active = nil
	}
	s.reg.Clear()
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ConfigText string `json:"configText"`
	}
	if err := decodeValid(r.Body, s.schemas.load, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topics, err := s.Load(r.Context(), req.ConfigText)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "topics": topics})
}

func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.Unload()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.reg.Names()})
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/topics/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "publish" {
		writeError(w, http.StatusNotFound, "route not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handlePublish(w, r, parts[0])
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, name string) {
	var req struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := decodeValid(r.Body, s.schemas.publish, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		msg   flow.Message
		value *float64
	)
	if req.Type == "double" {
		d, err := strconv.ParseFloat(strings.TrimSpace(req.Value), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid double value: "+req.Value)
			return
		}
		msg = flow.NewNumberMessage(d)
		value = eventbus.Float(d)
	} else {
		msg = flow.NewTextMessage(req.Value)
	}

	s.reg.Topic(name).Publish(msg)
	s.bus.Emit(eventbus.NewInputPublish(graphview.TopicNodeID(name), value))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	g := graphview.Build(s.reg)
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":     g.Nodes(),
		"edges":     g.Edges(),
		"hasCycles": g.HasCycles(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.bus.Snapshot(limit)})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sub := s.bus.Subscribe(0)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("encode event failed", "error", err)
				continue
			}
			if _, err := w.Write([]byte("data: " + string(b) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.peers == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"node_id": s.nodeID,
		"node":    s.peers.Peers(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeNoContent(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}
