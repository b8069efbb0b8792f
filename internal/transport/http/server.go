package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/config"
	"github.com/vovakirdan/duelsync-server/internal/core"
)

// NewAPIServer builds the REST server for client and room management.
// history may be nil when match recording is disabled.
func NewAPIServer(hub *core.Hub, history MatchHistory, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           newAPIHandler(hub, history, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewWSServer builds the WebSocket server. It listens separately from the API.
func NewWSServer(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.WSAddr,
		Handler:           NewWSHandler(hub, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newAPIHandler(hub *core.Hub, history MatchHistory, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	// Client IPs come from the socket, not forwarding headers.
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(hub, history, logger)
	rooms := NewRoomHandlers(hub, logger)

	router.GET("/", func(c *gin.Context) { c.Status(stdhttp.StatusBadRequest) })
	router.GET("/health", api.Health)
	router.GET("/hi", api.Register)
	router.GET("/bye", api.Unregister)
	router.GET("/plz", api.Renew)
	router.GET("/history/:clientid", api.History)
	router.GET("/room", rooms.CreateRoom)
	router.GET("/room/:roomid", rooms.JoinRoom)
	router.GET("/room/:roomid/history", api.RoomHistory)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{stdhttp.MethodGet, stdhttp.MethodHead},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(router)
}
