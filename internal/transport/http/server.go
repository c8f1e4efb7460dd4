package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/peerlink/internal/auth"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/relay"
)

// NewServer builds the relay HTTP server: health probe, room listing and the
// peer websocket endpoint.
func NewServer(hub *relay.Hub, cfg config.RelayConfig, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := router.Group("/api")
	api.Use(AuthMiddleware(jwtCfg, cfg.JWTRequired, logger))
	rooms := NewRoomsHandler(hub, logger)
	api.GET("/rooms", rooms.List)

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
