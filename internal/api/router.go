package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"relay/internal/auth"
	"relay/internal/blob"
	"relay/internal/bus"
	"relay/internal/channelhub"
	"relay/internal/config"
	"relay/internal/db"
	"relay/internal/linkpreview"
	"relay/internal/moderation"
	"relay/internal/ratelimit"
	"relay/internal/session"
	"relay/internal/sfu"
	"relay/internal/voice"
	"relay/internal/wsio"
)

// Server wires every domain package (Channel Hub, Voice Room Controller,
// SFU Control Plane, Moderation) into a single chi.Mux, grounded on the
// teacher's router.go wiring order: config -> services -> handlers ->
// middleware stack -> routes.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	sessions *session.Registry
	sfu      *sfu.Manager
}

func NewServer(cfg *config.Config, database *db.DB, eventBus *bus.Bus) (*Server, error) {
	users := db.NewUserRepository(database)
	refreshTokens := db.NewRefreshTokenRepository(database)
	channels := db.NewChannelRepository(database)
	messages := db.NewMessageRepository(database)
	reactions := db.NewReactionRepository(database)
	attachments := db.NewAttachmentRepository(database)
	previews := db.NewLinkPreviewRepository(database)
	moderationRepo := db.NewModerationRepository(database)
	invites := db.NewInviteRepository(database)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	limiter := ratelimit.NewLimiter()
	policy := ratelimit.NewPolicy()

	sessions := session.NewRegistry()

	blobBackend, err := newBlobBackend(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage backend: %w", err)
	}
	blobService, err := blob.NewService(blobBackend, cfg.Storage.UploadMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("initializing blob service: %w", err)
	}

	sfuManager, err := sfu.NewManager(
		&sfu.Config{PublicIP: cfg.SFU.PublicIP, MinPort: cfg.SFU.MinPort, MaxPort: cfg.SFU.MaxPort},
		sfu.TURNConfig{Host: cfg.SFU.TURN.Host, Port: cfg.SFU.TURN.Port, Secret: cfg.SFU.TURN.Secret, TTL: cfg.SFU.TURN.TTL},
		eventBus,
	)
	if err != nil {
		return nil, fmt.Errorf("initializing sfu manager: %w", err)
	}

	voiceController := voice.NewController(eventBus, sfuManager.RouterFactory)

	lp := linkpreview.NewService()
	hub := channelhub.NewHub(channels, messages, reactions, attachments, previews, lp, eventBus, limiter, policy)

	modService := moderation.NewService(users, moderationRepo, sessions, eventBus, policy, limiter)

	authHandler := NewAuthHandler(users, refreshTokens, moderationRepo, jwtService)
	userHandler := NewUserHandler(users, eventBus)
	channelHandler := NewChannelHandler(hub)
	messageHandler := NewMessageHandler(hub)
	voiceHandler := NewVoiceHandler(voiceController, sfuManager)
	webrtcHandler := NewWebRTCHandler(sfuManager)
	moderationHandler := NewModerationHandler(modService)
	inviteHandler := NewInviteHandler(invites, users, refreshTokens, jwtService)
	initHandler := NewInitHandler(hub, users, sessions)
	uploadHandler := NewUploadHandler(blobService, cfg.Server.BaseURL)
	mediaHandler := NewMediaHandler(blobService)
	healthHandler := NewHealthHandler(database)
	serverInfoHandler := NewServerInfoHandler(cfg.Server.Name, cfg.Server.BaseURL, cfg.Storage.UploadMaxBytes)

	authMiddleware := NewAuthMiddleware(jwtService, users, moderationRepo)
	ipResolver, err := NewClientIPResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("initializing client IP resolver: %w", err)
	}

	loginLimiter := NewRequestRateLimiter(10, time.Minute)
	registerLimiter := NewRequestRateLimiter(5, time.Minute)
	refreshLimiter := NewRequestRateLimiter(30, time.Minute)
	wsUpgradeLimiter := NewRequestRateLimiter(10, time.Minute)

	wsHandler := wsio.NewHandler(jwtService, users, moderationRepo, sessions, hub, voiceController, eventBus, cfg.Server.CORSOrigins)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Get("/media/{id}", mediaHandler.Get)
	r.Get("/media/{id}/preview", mediaHandler.GetPreview)
	r.With(RateLimitMiddleware(wsUpgradeLimiter, ipResolver)).Get("/ws", wsHandler.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/server/info", serverInfoHandler.GetInfo)

		r.Route("/auth", func(r chi.Router) {
			r.Use(maxBodySizeMiddleware(1 << 20))
			r.With(RateLimitMiddleware(registerLimiter, ipResolver)).Post("/register", authHandler.Register)
			r.With(RateLimitMiddleware(loginLimiter, ipResolver)).Post("/login", authHandler.Login)
			r.With(RateLimitMiddleware(refreshLimiter, ipResolver)).Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/invites", func(r chi.Router) {
			r.With(RateLimitMiddleware(registerLimiter, ipResolver)).Post("/redeem", inviteHandler.Redeem)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Post("/", inviteHandler.Create)
				r.Delete("/{id}", inviteHandler.Revoke)
			})
		})

		r.Route("/init", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", initHandler.Get)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", userHandler.List)
			r.Get("/me", userHandler.GetMe)
			r.With(maxBodySizeMiddleware(1 << 20)).Patch("/me", userHandler.UpdateMe)
			r.Post("/me/avatar", uploadHandler.UploadAvatar)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", channelHandler.List)
			r.Post("/", channelHandler.Create)
			r.Patch("/{id}", channelHandler.Update)
			r.Delete("/{id}", channelHandler.Delete)

			r.Get("/{id}/messages", messageHandler.GetHistory)
			r.Post("/{id}/messages", messageHandler.Send)

			r.Get("/{id}/rtp-capabilities", webrtcHandler.RouterCapabilities)
			r.Get("/{id}/producers", webrtcHandler.ListProducers)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Patch("/{mid}", messageHandler.Edit)
			r.Delete("/{mid}", messageHandler.Delete)
			r.Put("/{mid}/reactions/{emoji}", messageHandler.AddReaction)
			r.Delete("/{mid}/reactions/{emoji}", messageHandler.RemoveReaction)
		})

		r.Route("/uploads", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/attachment", uploadHandler.UploadAttachment)
		})

		r.Route("/voice", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/join", voiceHandler.Join)
			r.Post("/leave", voiceHandler.Leave)
		})

		r.Route("/transports", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Post("/", webrtcHandler.CreateTransport)
			r.Post("/{id}/connect", webrtcHandler.ConnectTransport)
			r.Post("/{id}/produce", webrtcHandler.Produce)
			r.Post("/{id}/consume", webrtcHandler.Consume)
			r.Delete("/{id}", webrtcHandler.DeleteTransport)
		})

		r.Route("/moderation", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/log", moderationHandler.Log)
			r.Post("/users/{userId}/kick", moderationHandler.Kick)
			r.Post("/users/{userId}/ban", moderationHandler.Ban)
			r.Delete("/users/{userId}/ban", moderationHandler.Unban)
			r.Post("/users/{userId}/mute", moderationHandler.Mute)
			r.Delete("/users/{userId}/mute", moderationHandler.Unmute)
			r.Patch("/users/{userId}/role", moderationHandler.ChangeRole)
		})
	})

	return &Server{router: r, config: cfg, sessions: sessions, sfu: sfuManager}, nil
}

func newBlobBackend(cfg config.StorageConfig) (blob.Backend, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewS3Backend(cfg.S3.Bucket, cfg.S3.Region, cfg.S3.Endpoint, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
	default:
		return blob.NewLocalBackend(cfg.Path)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Shutdown closes every live session; the HTTP server's own graceful
// shutdown (caller-owned http.Server.Shutdown) handles the listener.
func (s *Server) Shutdown() {
	s.sessions.SweepStale(time.Now().Add(time.Hour))
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
