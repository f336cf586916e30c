package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/support-service/api"
	"github.com/psds-microservice/support-service/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func New(tickets *handler.TicketHandler, messages *handler.MessageHandler, stream *handler.StreamHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/support/tickets/resolve", tickets.Resolve)
		v1.GET("/support/tickets", tickets.List)
		v1.GET("/support/tickets/:id", tickets.Get)
		v1.PUT("/support/tickets/:id", tickets.Update)
		v1.POST("/support/tickets/:id/join", tickets.Join)
		v1.POST("/support/tickets/:id/close", tickets.Close)

		v1.GET("/support/tickets/:id/messages", messages.List)
		v1.POST("/support/tickets/:id/messages", messages.Send)
		v1.GET("/support/unread", messages.Unread)

		v1.GET("/support/tickets/:id/stream", stream.Stream)
		v1.GET("/support/stream", stream.StreamAll)
	}

	return r
}
