package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/preauto/preauto/pkg/api/handlers"
	"github.com/preauto/preauto/pkg/automation"
	"github.com/preauto/preauto/pkg/rules/schema"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine    *gin.Engine
	auto      *automation.Engine
	validator *schema.Validator
}

// NewRouter creates a new API router
func NewRouter(auto *automation.Engine, validator *schema.Validator) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:    engine,
		auto:      auto,
		validator: validator,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(301, "/swagger/index.html")
	})

	// Health check at root
	healthHandler := handlers.NewHealthHandler(r.auto)
	r.engine.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.engine.Group("/api/v1")
	{
		// Health
		v1.GET("/health", healthHandler.Health)

		// Environment state
		envHandler := handlers.NewEnvHandler(r.auto)
		envGroup := v1.Group("/env")
		{
			envGroup.GET("", envHandler.Snapshot)
			envGroup.GET("/rooms", envHandler.ListRooms)
			envGroup.GET("/rooms/:roomId", envHandler.GetRoom)
			envGroup.PUT("/rooms/:roomId", envHandler.UpsertRoom)
			envGroup.DELETE("/rooms/:roomId", envHandler.RemoveRoom)
			envGroup.GET("/:scope", envHandler.GetScope)
			envGroup.POST("/:scope/sensors/:type", envHandler.IngestSensor)
			envGroup.GET("/:scope/targets", envHandler.GetTargets)
			envGroup.PUT("/:scope/targets", envHandler.SetTargets)
		}

		// Rules
		rulesHandler := handlers.NewRulesHandler(r.auto, r.validator)
		rulesGroup := v1.Group("/rules")
		{
			rulesGroup.GET("", rulesHandler.ListRules)
			rulesGroup.POST("", rulesHandler.UpsertRule)
			rulesGroup.GET("/:id", rulesHandler.GetRule)
			rulesGroup.PUT("/:id", rulesHandler.UpsertRule)
			rulesGroup.DELETE("/:id", rulesHandler.RemoveRule)
			rulesGroup.POST("/:id/enable", rulesHandler.SetEnabled)
			rulesGroup.POST("/:id/plugs", rulesHandler.AssignPlug)
			rulesGroup.DELETE("/:id/plugs/:plugId", rulesHandler.RemovePlug)
		}

		// Plugs
		plugsHandler := handlers.NewPlugsHandler(r.auto)
		plugsGroup := v1.Group("/plugs")
		{
			plugsGroup.GET("", plugsHandler.ListPlugs)
			plugsGroup.POST("", plugsHandler.RegisterPlug)
			plugsGroup.DELETE("/:id", plugsHandler.UnregisterPlug)
			plugsGroup.GET("/:id/state", plugsHandler.GetState)
			plugsGroup.POST("/:id/state", plugsHandler.SetState)
		}

		// Automation introspection
		automationHandler := handlers.NewAutomationHandler(r.auto)
		automationGroup := v1.Group("/automation")
		{
			automationGroup.GET("/active", automationHandler.ActiveRules)
			automationGroup.GET("/log", automationHandler.AuditLog)
		}
	}
}

// Handler exposes the underlying HTTP handler, mainly for tests.
func (r *Router) Handler() *gin.Engine {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
