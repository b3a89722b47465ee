package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cerrors "companion/internal/errors"
	"companion/internal/logging"
	"companion/internal/observability"
	"companion/internal/protocol"
)

const (
	defaultListenAddr = "127.0.0.1:8765"
	writeTimeout      = 10 * time.Second
)

// Handler receives connection lifecycle and decoded messages. For a given
// connection Connected precedes every Message, and Disconnected is delivered
// exactly once, last, with the same Outbox that Connected handed out.
type Handler interface {
	Connected(sessionID string, out *Outbox)
	Message(sessionID string, msg protocol.Message)
	Disconnected(sessionID string, out *Outbox)
}

type Config struct {
	ListenAddr string
	Metrics    *observability.Metrics
	Logger     logging.Logger
}

func (c Config) withDefaults() Config {
	out := c
	out.ListenAddr = strings.TrimSpace(out.ListenAddr)
	if out.ListenAddr == "" {
		out.ListenAddr = defaultListenAddr
	}
	if logging.IsNil(out.Logger) {
		out.Logger = logging.NewComponentLogger("Bridge")
	}
	return out
}

// Server accepts websocket connections from agent processes on loopback.
type Server struct {
	cfg     Config
	handler Handler
	logger  logging.Logger

	mu      sync.Mutex
	ln      net.Listener
	httpSrv *http.Server
	addr    string
	conns   map[*websocket.Conn]struct{}
	wg      sync.WaitGroup
}

func New(cfg Config, handler Handler) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  cfg.Logger,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// ListenAddrForPort is the loopback address the bridge binds for port.
func ListenAddrForPort(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background. Bind failures are
// startup errors.
func (s *Server) Start() error {
	if s == nil {
		return errors.New("bridge is nil")
	}
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	if err := validateLoopback(cfg.ListenAddr); err != nil {
		return cerrors.Startup("bridge config", err)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return cerrors.Startup(fmt.Sprintf("listen %s", cfg.ListenAddr), err)
	}
	addr := ln.Addr().String()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(s.handleHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = httpSrv
	s.addr = addr
	s.mu.Unlock()

	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge serve failed: %v", err)
		}
	}()
	s.logger.Info("bridge listening on %s", addr)
	return nil
}

// Close stops accepting, closes live connections and waits for their
// goroutines to finish.
func (s *Server) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	srv := s.httpSrv
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.httpSrv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func validateLoopback(listenAddr string) error {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen addr %q: %w", listenAddr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen addr must bind to loopback, got %q", listenAddr)
	}
	return nil
}

// SessionIDFromPath extracts the session id from /ws/cli/{id}. A trailing
// slash is ignored; an empty id does not match.
func SessionIDFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, protocol.CLIPathPrefix) {
		return "", false
	}
	id := strings.TrimRight(strings.TrimPrefix(path, protocol.CLIPathPrefix), "/")
	if id == "" {
		return "", false
	}
	return id, true
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := SessionIDFromPath(r.URL.Path)
	if !ok {
		http.Error(w, "Expected path: /ws/cli/{session_id}", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade for session %s failed: %v", sessionID, err)
		return
	}

	s.mu.Lock()
	if s.httpSrv == nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()
	s.serveConn(sessionID, conn)
}

// serveConn runs the reader and writer for one agent connection until either
// side ends, then tears the connection down and reports the disconnect.
func (s *Server) serveConn(sessionID string, conn *websocket.Conn) {
	s.logger.Info("agent connected for session %s from %s", sessionID, conn.RemoteAddr())

	out := newOutbox()
	s.handler.Connected(sessionID, out)

	done := make(chan struct{})
	var closeOnce sync.Once
	finish := func() {
		closeOnce.Do(func() {
			close(done)
			out.close()
			_ = conn.Close()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer finish()
		s.writeLoop(sessionID, conn, out, done)
	}()

	s.readLoop(sessionID, conn)
	finish()
	<-writerDone

	s.handler.Disconnected(sessionID, out)
	s.logger.Info("agent disconnected for session %s", sessionID)
}

func (s *Server) readLoop(sessionID string, conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				s.logger.Debug("read for session %s ended: %v", sessionID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		messages, failures := protocol.DecodeFrame(data)
		for _, failure := range failures {
			s.cfg.Metrics.IncParseFailure()
			s.logger.Warn("session %s: skipping undecodable line %q: %v", sessionID, failure.Excerpt, failure.Err)
		}
		for _, msg := range messages {
			s.cfg.Metrics.IncInbound(string(msg.Type()))
			s.handler.Message(sessionID, msg)
		}
	}
}

func (s *Server) writeLoop(sessionID string, conn *websocket.Conn, out *Outbox, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-out.notify:
		}
		for _, line := range out.drain() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.TextMessage, []byte(line))
			s.cfg.Metrics.ObserveSend(err)
			if err != nil {
				s.logger.Warn("write for session %s failed: %v", sessionID, cerrors.Transport("write", err))
				return
			}
		}
	}
}
