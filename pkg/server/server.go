// Package server exposes voice sessions over WebSocket with a small HTTP
// surface for health, metrics and session listing.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/kitchen-buddy/internal/log"
	"github.com/teslashibe/kitchen-buddy/pkg/metrics"
	"github.com/teslashibe/kitchen-buddy/pkg/protocol"
	"github.com/teslashibe/kitchen-buddy/pkg/voice"
)

// maxMessageSize bounds a single inbound frame.
const maxMessageSize = 4 << 20

// Options configures a Server.
type Options struct {
	// Voice is the per-session pipeline configuration.
	Voice voice.Config

	// Services are shared by all sessions. Providers must be safe for
	// concurrent use.
	Services voice.Services

	// Metrics is optional; nil disables /metrics.
	Metrics *metrics.Metrics

	Logger       *slog.Logger
	Version      string
	AllowOrigins string
	Debug        bool // request logging
}

// Server manages voice WebSocket connections.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*voice.Session

	// Stats
	sessionsOpened   atomic.Uint64
	messagesReceived atomic.Uint64
	audioBytesIn     atomic.Uint64
	controlRejected  atomic.Uint64
}

// New creates a server and registers its routes.
func New(opts Options) (*Server, error) {
	if err := opts.Voice.Validate(); err != nil {
		return nil, err
	}
	if opts.Services.STT == nil || opts.Services.LLM == nil || opts.Services.TTS == nil {
		return nil, voice.ErrMissingService
	}
	if opts.Logger == nil {
		opts.Logger = log.L()
	}
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}

	s := &Server{
		opts:     opts,
		logger:   opts.Logger.With("component", "server"),
		sessions: make(map[string]*voice.Session),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	app := fiber.New(fiber.Config{
		AppName:               "kitchen-buddy",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: opts.AllowOrigins}))
	if opts.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
	s.RegisterAPIRoutes(app.Group("/api"))
	s.RegisterRoutes(app)

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// RegisterRoutes registers the voice WebSocket route.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleVoice))
}

// RegisterAPIRoutes registers session inspection routes.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/sessions", func(c *fiber.Ctx) error {
		infos := s.SessionInfos()
		return c.JSON(fiber.Map{
			"sessions": infos,
			"count":    len(infos),
		})
	})

	api.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess := s.Session(c.Params("id"))
		if sess == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
		}
		return c.JSON(fiber.Map{
			"session": sess.Info(),
			"history": sess.History(),
		})
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Stats())
	})
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr, "segmentation", s.opts.Voice.Segmentation)
	return s.app.Listen(addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown closes every session and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	for _, sess := range s.snapshot() {
		sess.Close()
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.opts.Version,
		"sessions": s.SessionCount(),
	})
}

// handleVoice runs one voice session for the lifetime of the connection.
func (s *Server) handleVoice(c *websocket.Conn) {
	tr := &connTransport{conn: c, metrics: s.opts.Metrics}

	var obs voice.Observer = voice.NopObserver{}
	if s.opts.Metrics != nil {
		obs = s.opts.Metrics
	}

	sess, err := voice.NewSession(s.opts.Voice, s.opts.Services, tr,
		voice.WithLogger(s.opts.Logger),
		voice.WithObserver(obs),
	)
	if err != nil {
		s.logger.Error("create session", "error", err)
		tr.SendEvent(protocol.NewError(err.Error()))
		return
	}

	s.register(sess)
	defer s.unregister(sess)

	if err := sess.Start(s.ctx); err != nil {
		s.logger.Error("start session", "session", sess.ID(), "error", err)
		return
	}

	// A session can end on its own (stop message, write failure, shutdown);
	// expire the read so the loop below returns.
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		<-sess.Done()
		c.SetReadDeadline(time.Now())
	}()
	defer func() {
		sess.Close()
		<-watched
		tr.closeNormal("session closed")
	}()

	c.SetReadLimit(maxMessageSize)
	s.readLoop(c, sess)
}

func (s *Server) readLoop(c *websocket.Conn, sess *voice.Session) {
	logger := s.logger.With("session", sess.ID())

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("read loop ended", "error", err)
			return
		}
		s.messagesReceived.Add(1)

		switch mt {
		case websocket.BinaryMessage:
			s.audioBytesIn.Add(uint64(len(data)))
			if s.opts.Metrics != nil {
				s.opts.Metrics.RecordAudio("in", len(data))
			}
			if err := sess.HandleAudio(data); err != nil {
				return
			}

		case websocket.TextMessage:
			msg, err := protocol.ParseControl(data)
			if err != nil {
				s.controlRejected.Add(1)
				logger.Warn("ignoring control frame", "error", err)
				continue
			}
			if err := sess.HandleControl(msg); err != nil {
				if errors.Is(err, voice.ErrClosed) {
					return
				}
				logger.Warn("control frame rejected", "type", msg.Type, "error", err)
			}
		}
	}
}

func (s *Server) register(sess *voice.Session) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.sessionsOpened.Add(1)
	s.logger.Info("session connected", "session", sess.ID(), "total", n)
}

func (s *Server) unregister(sess *voice.Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	n := len(s.sessions)
	s.mu.Unlock()

	s.logger.Info("session disconnected", "session", sess.ID(), "total", n)
}

func (s *Server) snapshot() []*voice.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*voice.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Session returns a connected session by id, or nil.
func (s *Server) Session(id string) *voice.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SessionInfos returns info about all connected sessions, oldest first.
func (s *Server) SessionInfos() []voice.Info {
	sessions := s.snapshot()
	infos := make([]voice.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}

// Stats contains server statistics.
type Stats struct {
	SessionCount     int    `json:"session_count"`
	SessionsOpened   uint64 `json:"sessions_opened"`
	MessagesReceived uint64 `json:"messages_received"`
	AudioBytesIn     uint64 `json:"audio_bytes_in"`
	ControlRejected  uint64 `json:"control_rejected"`
}

// Stats returns server statistics.
func (s *Server) Stats() Stats {
	return Stats{
		SessionCount:     s.SessionCount(),
		SessionsOpened:   s.sessionsOpened.Load(),
		MessagesReceived: s.messagesReceived.Load(),
		AudioBytesIn:     s.audioBytesIn.Load(),
		ControlRejected:  s.controlRejected.Load(),
	}
}
