// Package live serves a finished run's event stream over HTTP and
// websocket so external viewers can replay a battle without touching the
// simulation files.
package live

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"fireknight/sim/internal/journal"
	"fireknight/sim/internal/report"
	"fireknight/sim/internal/stream"
	"fireknight/sim/logging"
)

const writeWait = 10 * time.Second

// Server replays one immutable event sequence to any number of
// subscribers. It holds no simulation state; the run already happened.
type Server struct {
	events   []journal.Event
	pub      logging.Publisher
	upgrader websocket.Upgrader
}

// NewServer wraps a recorded event sequence for serving.
func NewServer(events []journal.Event, pub logging.Publisher) *Server {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Server{
		events: events,
		pub:    pub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler routes the replay endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleEvents returns the whole stream as one wire-format document.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	raw, err := stream.Encode(s.events)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

// handleReport renders the boss-frame text view. The frame-closing actor
// defaults to "Boss" and can be overridden with ?boss=Name.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	bossActor := r.URL.Query().Get("boss")
	if bossActor == "" {
		bossActor = "Boss"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(report.RenderText(s.events, bossActor, report.RenderOptions{})))
}

// handleWS streams one event per text frame, in log order, then closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.pub.Publish(r.Context(), logging.Event{
			Type:     "live.upgrade_failed",
			Severity: logging.SeverityWarn,
			Category: logging.CategorySystem,
			Extra:    map[string]any{"error": err.Error()},
		})
		return
	}
	defer conn.Close()

	for _, e := range s.events {
		raw, err := stream.Encode([]journal.Event{e})
		if err != nil {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete")
	conn.WriteControl(websocket.CloseMessage, message, deadline)
}

// Serve runs the replay server until ctx is cancelled.
func Serve(ctx context.Context, addr string, events []journal.Event, pub logging.Publisher) error {
	srv := NewServer(events, pub)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
