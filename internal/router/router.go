// File: internal/router/router.go
package router

import (
	"three-tier-lab/internal/cache"
	"three-tier-lab/internal/database"
	"three-tier-lab/internal/handler"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "three-tier-lab/docs" // 引入 swag 產出的 docs
)

// Setup 註冊所有路由；cch 可為 nil（不啟用快取）
func Setup(e *echo.Echo, db database.DB, cch cache.Cache, opts handler.Options) {
	e.GET("/", handler.IndexHandler())
	e.GET("/users", handler.ListUsersHandler(db, cch, opts))
	e.GET("/health", handler.HealthHandler(db, opts))

	// Swagger UI
	e.GET("/swagger/*", echoSwagger.WrapHandler)
}
