package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paper-pigeon/backend/internal/server/middleware"
	"github.com/paper-pigeon/backend/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiRoutes := e.Group("/api")

	// Graph routes
	graphRoutes := apiRoutes.Group("/graph")
	graphRoutes.GET("/data", routes.GetGraphDataHandler)
	graphRoutes.POST("/paper-lab-id", routes.PaperLabIDHandler)
	graphRoutes.POST("/rebuild-cache", routes.RebuildCacheHandler, middleware.AuthMiddleware, middleware.RequirePermission(middleware.PermRebuild))
	graphRoutes.POST("/reload-cache", routes.ReloadCacheHandler, middleware.AuthMiddleware, middleware.RequirePermission(middleware.PermReload))

	// Document routes
	apiRoutes.GET("/pdf/test", routes.PDFTestHandler)
	apiRoutes.POST("/pdf/url", routes.PDFURLHandler)

	// Knowledge base routes
	apiRoutes.GET("/rag/test", routes.RAGTestHandler)
	apiRoutes.POST("/rag/chat", routes.ChatHandler)
	apiRoutes.GET("/recommendations/test", routes.RecommendationsTestHandler)
	apiRoutes.POST("/recommendations/from-resume", routes.RecommendFromResumeHandler)
}
