package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/chaingate/internal/api/handlers"
	"github.com/jroosing/chaingate/internal/api/middleware"
	"github.com/jroosing/chaingate/internal/api/models"
	"github.com/jroosing/chaingate/internal/config"
)

// RegisterRoutes wires the introspection endpoints onto r. ws is the
// frontend's upgrade handler, mounted on the same engine and port as the
// HTTP routes per the gateway's single-listener design.
func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config, ws http.HandlerFunc) {
	var origins []string
	if cfg != nil {
		origins = cfg.CORS.Origins
	}
	r.Use(middleware.CORS(origins))

	r.GET("/health", h.Health)
	r.GET("/status", h.Status)
	r.GET("/status/events", h.Events)

	if ws != nil {
		r.GET("/ws", gin.WrapF(ws))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusOK, models.ServiceDocument{
			Service: "chaingate",
			Routes:  []string{"/health", "/status", "/status/events", "/ws"},
		})
	})
}
