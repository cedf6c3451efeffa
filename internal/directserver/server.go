// Package directserver implements the DirectServer: a local,
// unauthenticated WebSocket server for on-boat clients. Each
// connection registers a sync.Transport whose Send enqueues onto a
// small per-connection outbound channel drained by a dedicated writer
// goroutine, so one slow client can never block the StateBus's commit
// path — the write-pump split is adapted directly from
// nikoskalogridis-streamerbrainz's Hub/Client (reference-only; this
// package has no Hub registry of its own, since internal/sync already
// is one).
package directserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/compendiumnav/boatrelay/internal/sync"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 20 * time.Second
	outboundBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the DirectServer.
type Server struct {
	port  int
	coord *sync.Coordinator
	log   *slog.Logger

	httpServer *http.Server
	nextID     atomic.Uint64
}

// New constructs a Server listening on port, routing messages through
// coord.
func New(port int, coord *sync.Coordinator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{port: port, coord: coord, log: log}
}

// Run starts the HTTP listener and blocks until ctx is canceled or the
// server fails to start.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(s.port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("directserver: listening", "port", s.port)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("directserver: upgrade failed", "error", err)
		return
	}

	name := "direct-" + strconv.FormatUint(s.nextID.Add(1), 10)
	send := make(chan any, outboundBuffer)

	transport := sync.Transport{
		Send: func(payload any) error {
			select {
			case send <- payload:
				return nil
			default:
				return errors.New("directserver: outbound queue full, dropping")
			}
		},
	}

	s.coord.HandleConnect(name, transport)
	go s.writePump(conn, send, name)
	s.readPump(conn, send, name)
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan any, name string) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case payload, ok := <-send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(payload)
			if err != nil {
				s.log.Warn("directserver: marshal failed", "transport", name, "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("directserver: write failed, closing", "transport", name, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, send chan<- any, name string) {
	defer func() {
		s.coord.HandleDisconnect(name)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := sync.DecodeMessage(raw)
		if err != nil {
			s.log.Debug("directserver: dropping unparsable message", "transport", name, "error", err)
			continue
		}

		response, handled := s.coord.HandleMessage(name, msg)
		if !handled || response == nil {
			continue
		}
		select {
		case send <- response:
		default:
			s.log.Warn("directserver: outbound queue full, dropping ack", "transport", name)
		}
	}
}
