package api

import (
	"github.com/gin-gonic/gin"

	"github.com/flexiproxy/flexiproxy/internal/billing"
	"github.com/flexiproxy/flexiproxy/internal/contact"
	"github.com/flexiproxy/flexiproxy/internal/http/api/handlers"
	"github.com/flexiproxy/flexiproxy/internal/kv"
	"github.com/flexiproxy/flexiproxy/internal/permissions"
	"github.com/flexiproxy/flexiproxy/internal/providers"
	"github.com/flexiproxy/flexiproxy/internal/proxydir"
	"github.com/flexiproxy/flexiproxy/internal/registry"
	"github.com/flexiproxy/flexiproxy/internal/token"
)

// Deps carries the constructed components the routes depend on.
type Deps struct {
	Store     kv.Store
	Registry  *registry.Registry
	Directory *proxydir.Directory
	Providers *providers.Directory
	Gate      *permissions.Gate
	Tokens    *token.Fabricator
	Intake    *contact.Intake
	Billing   *billing.Service
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.Store)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0")
	authed.Use(handlers.SessionAuthMiddleware(deps.Tokens))

	adapterHandler := handlers.NewAdapterHandler(deps.Registry, deps.Gate, deps.Tokens)
	authed.GET("/adapters", adapterHandler.List)
	authed.GET("/adapters/version", adapterHandler.GetVersion)
	authed.GET("/adapters/:id", adapterHandler.Get)
	authed.POST("/adapters", adapterHandler.Create)
	authed.PUT("/adapters/:id", adapterHandler.Update)
	authed.DELETE("/adapters/:id", adapterHandler.Delete)

	gateTokenHandler := handlers.NewGateTokenHandler(deps.Tokens)
	authed.POST("/gate-tokens", gateTokenHandler.Create)

	proxyHandler := handlers.NewProxyHandler(deps.Directory)
	authed.GET("/proxies", proxyHandler.List)
	authed.GET("/proxies/:id/health", proxyHandler.Health)

	providerHandler := handlers.NewProviderHandler(deps.Providers)
	authed.GET("/providers", providerHandler.List)

	permissionsHandler := handlers.NewPermissionsHandler(deps.Gate)
	authed.GET("/permissions", permissionsHandler.Get)

	contactHandler := handlers.NewContactHandler(deps.Intake)
	authed.POST("/contact", contactHandler.Submit)

	billingHandler := handlers.NewBillingHandler(deps.Billing)
	authed.GET("/billing/plans", billingHandler.Plans)
	authed.GET("/billing/subscription", billingHandler.Subscription)

	admin := authed.Group("/admin")
	admin.Use(handlers.AdminMiddleware())
	admin.PUT("/proxies/:id", proxyHandler.Put)
	admin.DELETE("/proxies/:id", proxyHandler.Delete)
	admin.PUT("/providers/:id", providerHandler.Put)
	admin.DELETE("/providers/:id", providerHandler.Delete)
	admin.PUT("/users/:id/permissions", permissionsHandler.Set)
}
