package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkaran/coedit/internal/adapters/collab"
	"github.com/mkaran/coedit/internal/config"
)

// ClientTokenMiddleware issues a stable per-browser token. The editor
// UI uses it as its session handle; the relay itself trusts whatever
// identity arrives in the join message.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the transport gateway: the single /collab upgrade
// path plus a small read-only introspection API. Any other path falls
// through to the router's 404 and never reaches the relay.
func SetupRouter(ctx context.Context, cfg *config.Config, ctl *collab.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CoeditSession", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"clientToken": c.GetString("client_token")})
	})
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": ctl.Registry.Rooms()})
	})

	r.GET("/collab", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("client_token", c.GetString("client_token")).
			Msg("collab endpoint hit")
		ctl.HandleCollab(ctx, c)
	})

	return r
}
