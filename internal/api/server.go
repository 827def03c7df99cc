package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/airmirror/internal/capture"
	"github.com/bryanchriswhite/airmirror/internal/config"
	"github.com/bryanchriswhite/airmirror/internal/logger"
	"github.com/bryanchriswhite/airmirror/internal/metrics"
	"github.com/bryanchriswhite/airmirror/internal/receiver"
	"github.com/bryanchriswhite/airmirror/internal/stream"
	"github.com/bryanchriswhite/airmirror/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Status is the payload served by /api/status and pushed over the
// status websocket.
type Status struct {
	Receivers  map[string]bool `json:"receivers"`
	Positioned map[string]bool `json:"positioned"`
}

// Server represents the HTTP server: the viewer page, one MJPEG stream
// route per source, a small JSON API, and Prometheus metrics.
type Server struct {
	router     *mux.Router
	httpServer *http.Server

	cfg        config.Config
	backend    window.Backend
	capturer   capture.Capturer
	reconciler *window.Reconciler
	supervisor *receiver.Supervisor
	metrics    *metrics.Metrics

	// baseCtx is the process-wide shutdown signal; every stream
	// session observes it.
	baseCtx  context.Context
	upgrader websocket.Upgrader
}

// NewServer creates the HTTP server. reconciler, supervisor and
// metrics may be nil.
func NewServer(baseCtx context.Context, cfg config.Config, backend window.Backend, capturer capture.Capturer, reconciler *window.Reconciler, supervisor *receiver.Supervisor, m *metrics.Metrics) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		cfg:        cfg,
		backend:    backend,
		capturer:   capturer,
		reconciler: reconciler,
		supervisor: supervisor,
		metrics:    m,
		baseCtx:    baseCtx,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/stream/{id}", s.handleStream).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/sources", s.handleSources).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/status/stream", s.handleStatusStream)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.router.PathPrefix("/").HandlerFunc(s.handleIndex)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	logger.WithComponent("api").Info().
		Str("addr", addr).
		Msg("HTTP server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for handlers to
// drain. Stream sessions end via the base context.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleStream serves one continuous MJPEG stream for a source. Each
// connection gets its own frame source and session; nothing is shared
// between concurrent viewers of the same source.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	src, ok := s.cfg.SourceByID(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	log := logger.WithComponent("api")
	log.Info().Str("source", id).Str("remote", r.RemoteAddr).Msg("Stream client connected")
	if s.metrics != nil {
		s.metrics.ClientConnected(id)
		defer s.metrics.ClientDisconnected(id)
	}
	defer log.Info().Str("source", id).Str("remote", r.RemoteAddr).Msg("Stream client disconnected")

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "close")

	// End the session on client disconnect or process shutdown,
	// whichever comes first.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stopWatch := context.AfterFunc(s.baseCtx, cancel)
	defer stopWatch()

	source := stream.NewFrameSource(src, s.backend, s.capturer, s.cfg.Stream.LookupInterval(), s.metrics)
	session := stream.NewSession(id, source, s.cfg.Stream.JPEGQuality, s.cfg.Stream.MaxWidth, s.cfg.Stream.FrameInterval(), s.metrics)

	if err := session.Run(ctx, w); err != nil {
		log.Error().Err(err).Str("source", id).Msg("Stream session ended with error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.cfg.Sources)
}

func (s *Server) status() Status {
	st := Status{
		Receivers:  make(map[string]bool),
		Positioned: make(map[string]bool),
	}
	if s.supervisor != nil {
		st.Receivers = s.supervisor.Snapshot()
	}
	if s.reconciler != nil {
		st.Positioned = s.reconciler.Snapshot()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

// handleStatusStream pushes the status snapshot over a websocket once
// a second, so the page can show receiver liveness without polling.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.status()); err != nil {
		return
	}
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.status()); err != nil {
				return
			}
		}
	}
}

// handleIndex serves the viewer page with every configured stream side
// by side.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		if !strings.HasPrefix(r.URL.Path, "/api") {
			http.NotFound(w, r)
		}
		return
	}

	var streams strings.Builder
	for _, src := range s.cfg.Sources {
		fmt.Fprintf(&streams, `        <figure class="feed">
            <img src="/stream/%s" alt="%s">
            <figcaption>%s</figcaption>
        </figure>
`, src.ID, src.Name, src.Name)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>AirMirror</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: #000;
            min-height: 100vh;
            display: flex;
            justify-content: center;
            align-items: center;
            gap: 16px;
            padding: 16px;
        }
        .feed {
            display: flex;
            flex-direction: column;
            align-items: center;
            gap: 8px;
        }
        .feed img {
            max-height: 92vh;
            max-width: 46vw;
            object-fit: contain;
            background: #111;
            border-radius: 6px;
        }
        .feed figcaption {
            color: #888;
            font-family: system-ui, -apple-system, sans-serif;
            font-size: 13px;
        }
    </style>
</head>
<body>
%s</body>
</html>`, streams.String())
}
