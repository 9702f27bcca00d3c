package v1

import (
	"github.com/gin-gonic/gin"

	"loanflow-server/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates API route registration.
type Routes struct {
	handlers *handlers.Provider
}

func NewRoutes(provider *handlers.Provider) *Routes {
	return &Routes{handlers: provider}
}

// Register attaches all routes under the /api prefix.
func (r *Routes) Register(router gin.IRouter) {
	api := router.Group("/api")

	chat := api.Group("/chat")
	chat.POST("/message", r.handlers.Chat.Message)
	chat.GET("/status", r.handlers.Chat.Status)
	chat.POST("/reset", r.handlers.Chat.Reset)
	chat.GET("/sessions", r.handlers.Chat.Sessions)

	history := api.Group("/history")
	history.GET("/applications", r.handlers.History.Applications)
	history.GET("/applications/:id", r.handlers.History.Application)
	history.GET("/stats", r.handlers.History.Stats)

	documents := api.Group("/documents")
	documents.POST("/upload", r.handlers.Documents.Upload)
	documents.GET("/download/sanction-letter/:filename", r.handlers.Documents.DownloadSanctionLetter)

	api.GET("/health/apis", r.handlers.Health.APIs)
}
