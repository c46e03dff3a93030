package api

import (
	"github.com/datallboy/nzbstream/internal/api/controllers"
	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/streamer"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	nzbCtrl := &controllers.NZBController{App: app}
	streamCtrl := &controllers.StreamController{App: app, Service: streamer.NewService(app)}

	// NZB library
	e.GET("/api/nzb", nzbCtrl.HandleList)
	e.POST("/api/nzb", nzbCtrl.HandleImport)
	e.GET("/api/nzb/:id", nzbCtrl.HandleGet)
	e.DELETE("/api/nzb/:id", nzbCtrl.HandleDelete)

	// Byte-range streaming of a single file
	e.GET("/stream/:id/:file", streamCtrl.HandleStream)
	e.HEAD("/stream/:id/:file", streamCtrl.HandleStream)

	e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
}
