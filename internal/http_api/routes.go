package http_api

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/claim/:token", s.claim)
	s.router.GET("/api/v1/stats", s.stats)
	s.router.GET("/api/v1/health", s.health)
}
