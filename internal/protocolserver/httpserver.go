package protocolserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPServer fronts the dispatcher with a small gin router, adapted from the
// gateway's HTTP server (health check, a single JSON-in/JSON-out route, gin
// Recovery + a structured access-log middleware).
type HTTPServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewHTTPServer builds a gin router exposing the protocol over plain HTTP.
// ws may be nil to omit the WebSocket upgrade route.
func NewHTTPServer(addr string, d *Dispatcher, ws *WSHandler, logger *zap.Logger) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	router.POST("/v1/dispatch", func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err))
			return
		}
		resp := d.Handle(c.Request.Context(), req)
		c.JSON(http.StatusOK, resp)
	})

	if ws != nil {
		router.GET("/v1/ws", gin.WrapF(ws.ServeWS))
	}

	return &HTTPServer{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

func (s *HTTPServer) Start() {
	s.logger.Info("starting HTTP protocol server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP protocol server error", zap.Error(err))
		}
	}()
}

func (s *HTTPServer) Stop() error {
	return s.server.Close()
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
