// Package server assembles the fiber application: middleware, REST routes,
// the websocket endpoint and the background monitors.
package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"discussio-backend/internal/auth"
	"discussio-backend/internal/config"
	"discussio-backend/internal/database"
	"discussio-backend/internal/handler"
	"discussio-backend/internal/hub"
	"discussio-backend/internal/livekit"
	"discussio-backend/internal/monitor"
	"discussio-backend/internal/presence"
	"discussio-backend/internal/store"
)

// Server wraps the fiber app and the long-lived collaborators.
type Server struct {
	app *fiber.App
	cfg *config.Config
	db  *database.MongoDB

	hub           *hub.Hub
	bridge        *livekit.Bridge
	timers        *monitor.Timers
	timerMonitor  *monitor.SessionTimerMonitor
	streakMonitor *monitor.StreakMonitor

	whiteboardHandler *handler.WhiteboardHandler
	streakHandler     *handler.StreakHandler
	healthHandler     *handler.HealthHandler
	jwtManager        *auth.JWTManager
}

// New builds the server and all of its components.
func New(cfg *config.Config, db *database.MongoDB) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Discussio Realtime Backend",
		ServerHeader:    "Fiber",
		StrictRouting:   false,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // incompatible with in-process websocket state
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	whiteboards := store.NewWhiteboardStore(db)
	users := store.NewUserStore(db)
	groups := store.NewGroupStore(db)

	roomService := lksdk.NewRoomServiceClient(cfg.LiveKit.Host, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret)
	bridge := livekit.NewBridge(&cfg.LiveKit, roomService)

	registry := presence.NewRegistry()
	rooms := presence.NewRoomPresence()
	timers := monitor.NewTimers()

	h := hub.NewHub(registry, rooms, whiteboards, users, groups, bridge, timers)

	return &Server{
		app:               app,
		cfg:               cfg,
		db:                db,
		hub:               h,
		bridge:            bridge,
		timers:            timers,
		timerMonitor:      monitor.NewSessionTimerMonitor(timers, whiteboards, h, bridge, cfg.Session),
		streakMonitor:     monitor.NewStreakMonitor(groups, cfg.Streak),
		whiteboardHandler: handler.NewWhiteboardHandler(whiteboards, users, groups, bridge, h, timers, cfg.LiveKit.Host),
		streakHandler:     handler.NewStreakHandler(groups),
		healthHandler:     handler.NewHealthHandler(db),
		jwtManager:        jwtManager,
	}
}

// SetupMiddleware installs the global middleware chain.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes installs every HTTP and websocket route.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)

	// token minting hits the media provider; keep it from being hammered
	tokenLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	whiteboards := s.app.Group("/api/whiteboards", auth.AuthMiddleware(s.jwtManager))
	whiteboards.Post("/", s.whiteboardHandler.Create)
	whiteboards.Get("/mine", s.whiteboardHandler.Mine)
	whiteboards.Get("/:id", s.whiteboardHandler.Get)
	whiteboards.Delete("/:id", s.whiteboardHandler.End)
	whiteboards.Post("/:id/permissions", s.whiteboardHandler.UpdatePermissions)
	whiteboards.Post("/:id/livekit-token", tokenLimiter, s.whiteboardHandler.LiveKitToken)

	groups := s.app.Group("/api/groups", auth.AuthMiddleware(s.jwtManager))
	groups.Get("/:id/streak", s.streakHandler.Get)
	groups.Post("/:id/streak/config", s.streakHandler.UpdateConfig)

	// the socket endpoint authenticates before the upgrade; unauthenticated
	// connects never reach the hub
	s.app.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := auth.TokenFromRequest(c)
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		claims, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userID", claims.UserID)
		return c.Next()
	}, websocket.New(s.hub.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the monitors and serves until SIGINT/SIGTERM.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())

	go s.timerMonitor.Run(ctx)
	go s.streakMonitor.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		s.bridge.Close()
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Discussio realtime backend starting on %s", s.cfg.Server.Port)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server without waiting for a signal.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
