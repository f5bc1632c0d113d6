package router

import (
	"github.com/labstack/echo/v4"

	"triage/entities"
	"triage/pkg/middleware"
)

func New(
	e *echo.Echo,
	jwtSecret string,
	authCtrl interface {
		DevLogin(echo.Context) error
		WhoAmI(echo.Context) error
	},
	ticketCtrl interface {
		Create(echo.Context) error
		List(echo.Context) error
		Get(echo.Context) error
		Update(echo.Context) error
		Delete(echo.Context) error
		Stats(echo.Context) error
		Export(echo.Context) error
	},
	ctiCtrl interface {
		List(echo.Context) error
		Get(echo.Context) error
		Create(echo.Context) error
		Update(echo.Context) error
		Delete(echo.Context) error
		ImportCSV(echo.Context) error
		ExportCSV(echo.Context) error
		IngestCatalog(echo.Context) error
		RegenerateEmbedding(echo.Context) error
		PrecomputeEmbeddings(echo.Context) error
		Examples(echo.Context) error
	},
	learningCtrl interface {
		ListTrainingExamples(echo.Context) error
		CreateTrainingExample(echo.Context) error
		ListCorrections(echo.Context) error
	},
	healthCtrl interface{ Health(echo.Context) error },
) *echo.Echo {
	e.GET("/health", healthCtrl.Health)
	e.POST("/auth/devlogin", authCtrl.DevLogin)

	api := e.Group("/api", middleware.JWT(jwtSecret))
	api.GET("/whoami", authCtrl.WhoAmI)

	// Tickets: any authenticated user; visibility is scoped in the controller.
	api.POST("/tickets", ticketCtrl.Create)
	api.GET("/tickets", ticketCtrl.List)
	api.GET("/tickets/stats", ticketCtrl.Stats)
	api.GET("/tickets/export", ticketCtrl.Export)
	api.GET("/tickets/:id", ticketCtrl.Get)
	api.PATCH("/tickets/:id", ticketCtrl.Update)
	api.DELETE("/tickets/:id", ticketCtrl.Delete)

	// CTI catalog reads are open to engineers; writes are admin-only.
	api.GET("/cti", ctiCtrl.List)
	api.GET("/cti/:id", ctiCtrl.Get)
	api.GET("/cti/:id/examples", ctiCtrl.Examples)

	admin := api.Group("/cti", middleware.RequireRole(entities.RoleAdmin))
	admin.POST("", ctiCtrl.Create)
	admin.PATCH("/:id", ctiCtrl.Update)
	admin.DELETE("/:id", ctiCtrl.Delete)
	admin.POST("/import", ctiCtrl.ImportCSV)
	admin.GET("/export", ctiCtrl.ExportCSV)
	admin.POST("/:id/ingest", ctiCtrl.IngestCatalog)
	admin.POST("/:id/regenerate", ctiCtrl.RegenerateEmbedding)
	admin.POST("/precompute", ctiCtrl.PrecomputeEmbeddings)

	training := api.Group("/training", middleware.RequireRole(entities.RoleAdmin, entities.RoleSupportEngineer))
	training.GET("/examples", learningCtrl.ListTrainingExamples)
	training.POST("/examples", learningCtrl.CreateTrainingExample)
	training.GET("/corrections", learningCtrl.ListCorrections)

	return e
}
