package http

import (
	"context"
	"net/http"
	"time"

	"github.com/arl/statsviz"
	"github.com/dkeye/Tandem/internal/adapters/signal"
	"github.com/dkeye/Tandem/internal/app/orch"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenCookie = "ct"

// Pinger reports whether the shared store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter returns the engine and the WebSocket controller, which the
// caller drains on shutdown.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, health Pinger) (*gin.Engine, *signal.SignalWSController) {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("TandemSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Str("env", cfg.Env).Strs("origins", cfg.AllowedOrigins).Msg("router setup")

	ws := signal.NewSignalWSController(o, signal.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowAnyOrigin: cfg.Dev() && len(cfg.AllowedOrigins) == 0,
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		JoinLimit:      cfg.RateLimit.JoinLimit,
		JoinInterval:   cfg.RateLimit.JoinInterval,
	})
	rooms := &roomsHandler{orch: o}

	r.GET("/healthz", func(c *gin.Context) {
		if err := health.Ping(c.Request.Context()); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("health check")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "instance": o.Instance})
	})

	api := r.Group("/api")

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws endpoint hit")
		ws.HandleSignal(ctx, c)
	})
	api.GET("/stats", func(c *gin.Context) {
		st, err := o.Matches.Stats(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	})

	api.GET("/rooms", rooms.list)
	api.POST("/rooms", rooms.create)
	api.GET("/rooms/:roomId", rooms.get)
	api.GET("/rooms/:roomId/count", rooms.count)
	api.POST("/rooms/:roomId/join", rooms.join)
	api.DELETE("/rooms/:roomId/join", rooms.leave)

	if cfg.Dev() {
		mountStatsviz(r)
	}

	return r, ws
}

func mountStatsviz(r *gin.Engine) {
	srv, err := statsviz.NewServer()
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("statsviz disabled")
		return
	}
	index, ws := srv.Index(), srv.Ws()
	r.GET("/debug/statsviz/*filepath", func(c *gin.Context) {
		if c.Param("filepath") == "/ws" {
			ws(c.Writer, c.Request)
			return
		}
		index(c.Writer, c.Request)
	})
	log.Info().Str("module", "adapters.http").Msg("statsviz on /debug/statsviz/")
}
