package main

import (
	"dialops/internal/httpapi"
	"dialops/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		anyRole := rbac.RequireAnyRole(rbac.RoleViewer, rbac.RoleOperator, rbac.RoleAdmin)
		operatorUp := rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAdmin)
		adminOnly := rbac.RequireAnyRole(rbac.RoleAdmin)

		analytics := v1.Group("/analytics")
		analytics.Use(anyRole)
		{
			analytics.GET("/overview", h.AnalyticsOverview)
			analytics.GET("/setters", h.AnalyticsSetters)
			analytics.GET("/numbers/:number", h.AnalyticsNumberDetail)
			analytics.GET("/calls", h.AnalyticsCalls)
		}

		nums := v1.Group("/numbers")
		{
			nums.GET("", anyRole, h.ListNumbers)
			nums.GET("/search", operatorUp, h.SearchNumbers)
			nums.GET("/crm-status", anyRole, h.NumbersCRMStatus)
			nums.GET("/states", anyRole, h.ListStates)
			nums.POST("/states/search", operatorUp, h.SearchStateNumbers)

			nums.POST("/purchase", operatorUp, h.PurchaseNumber)
			nums.POST("/purchase-quick", operatorUp, h.QuickPurchaseNumber)
			nums.POST("/setters/bulk-purchase", adminOnly, h.BulkPurchaseSetters)
			nums.PUT("/:sid", adminOnly, h.UpdateNumber)
			nums.DELETE("/:sid", adminOnly, h.ReleaseNumber)
		}

		dir := v1.Group("/directory")
		{
			dir.GET("/users", anyRole, h.DirectoryUsers)
			dir.POST("/sync", adminOnly, h.DirectorySync)
		}
	}
}
