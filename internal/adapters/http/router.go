package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Canvas/internal/adapters/ws"
	"github.com/dkeye/Canvas/internal/config"
	"github.com/dkeye/Canvas/internal/domain"
	"github.com/dkeye/Canvas/internal/relay"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "CanvasSessions"
	authorKey   = "author"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AuthorMiddleware resolves the author id: ?author= wins, then the cookie
// session, then a fresh id that is stored in the cookie.
func AuthorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if raw := c.Query(authorKey); raw != "" {
			author, err := domain.ParseAuthorID(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.Set(authorKey, author)
			c.Next()
			return
		}
		if v, ok := sess.Get(authorKey).(string); ok {
			if author, err := domain.ParseAuthorID(v); err == nil {
				c.Set(authorKey, author)
				c.Next()
				return
			}
		}
		author := domain.NewAuthorID()
		sess.Set(authorKey, string(author))
		if err := sess.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
		}
		c.Set(authorKey, author)
		c.Next()
	}
}

func authorOf(c *gin.Context) domain.AuthorID {
	v, _ := c.Get(authorKey)
	author, _ := v.(domain.AuthorID)
	return author
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *relay.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	wsOpts := ws.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "conns": hub.Len()})
	})
	api.GET("/participants", func(c *gin.Context) {
		c.JSON(http.StatusOK, hub.Participants())
	})
	api.GET("/share", func(c *gin.Context) {
		p, ok := hub.Broadcaster()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"sharing": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sharing": true, "broadcaster": p})
	})

	authed := api.Group("", AuthorMiddleware())
	authed.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"author": authorOf(c)})
	})
	authed.GET("/ws", func(c *gin.Context) {
		author := authorOf(c)
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
			return
		}
		log.Info().Str("module", "adapters.http").Str("author", string(author)).Msg("ws endpoint hit")
		// The request context ends with the handler; the conn outlives it.
		go ws.Serve(ctx, hub, ws.NewConn(conn, author, wsOpts))
	})

	return r
}
