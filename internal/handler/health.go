// File: internal/handler/health.go
package handler

import (
	"context"
	"net/http"

	"three-tier-lab/internal/database"
	"three-tier-lab/internal/dto"

	"github.com/labstack/echo/v4"
)

// HealthHandler 健康檢查
// @Summary     Health Check
// @Description 自連線池取得連線並 Ping 資料庫
// @Tags        health
// @Produce     json
// @Success     200 {object} dto.HealthResponse
// @Failure     503 {object} dto.HealthResponse
// @Router      /health [get]
func HealthHandler(db database.DB, opts Options) echo.HandlerFunc {
	log := opts.logger()
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), opts.timeout())
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.WithError(err).Warn("database ping failed")
			return c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
				Status: "unhealthy",
				Error:  opts.errorText(err),
			})
		}
		return c.JSON(http.StatusOK, dto.HealthResponse{Status: "healthy", Database: "connected"})
	}
}
