package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	api := s.router.Group("/api/topup")
	api.POST("/add", s.addTopUp)
	api.DELETE("/delete", s.deleteTopUp)
	api.GET("/check", s.checkTopUp)

	if s.opts.WebhookSecret != "" && s.opts.Commands != nil && s.opts.Replier != nil {
		s.router.POST("/webhook/:secret", s.handleTelegramWebhook)
	}

	s.router.GET("/healthz", s.healthz)
	if s.opts.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
}
