// Package httpapi exposes the engine's admission, query, preference, and
// template surfaces over HTTP, grounded on gin router setup
// (src/server/server.go) and REST handler style (src/server/handlers/*.go).
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/apimgr/notifyengine/internal/notifyengine/config"
	"github.com/apimgr/notifyengine/internal/notifyengine/engine"
	"github.com/apimgr/notifyengine/internal/notifyengine/logging"
)

// NewRouter builds the gin engine for eng, wiring every route and
// middleware this engine exposes.
func NewRouter(eng *engine.Engine, posture config.Posture) *gin.Engine {
	if posture.Mode != config.ModeDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog(logging.NewAccessFormatter(logging.AccessFormatText)))
	r.Use(Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	corsCfg := cors.DefaultConfig()
	if posture.CORSAllowAll {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{}
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Request-ID", "X-Signature")
	r.Use(cors.New(corsCfg))

	h := &Handlers{Engine: eng}

	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	notifications := r.Group("/notifications", PassthroughAuth())
	{
		notifications.POST("", h.CreateNotification)
		notifications.POST("/bulk", h.CreateNotificationsBulk)
		notifications.GET("/:id", h.GetNotification)
		notifications.POST("/:id/cancel", h.CancelNotification)
		notifications.POST("/:id/retry", h.RetryNotification)
	}

	users := r.Group("/users", PassthroughAuth())
	{
		users.GET("/:user_id/notifications", h.ListUserNotifications)
		users.GET("/:user_id/preferences/:type", h.GetPreference)
		users.PUT("/:user_id/preferences/:type", h.PutPreference)
	}

	templates := r.Group("/templates", PassthroughAuth())
	{
		templates.GET("", h.ListTemplates)
		templates.GET("/:type/:channel", h.GetTemplate)
		templates.PUT("/:type/:channel", h.SetTemplate)
		templates.POST("/:type/:channel/activate", h.ActivateTemplate)
		templates.POST("/:type/:channel/preview", h.PreviewTemplate)
	}

	webhooks := r.Group("/webhooks", PassthroughAuth())
	{
		webhooks.POST("/inbound/:channel", h.InboundWebhook)
	}

	return r
}
