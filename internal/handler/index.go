// File: internal/handler/index.go
package handler

import (
	"net/http"

	"three-tier-lab/internal/dto"

	"github.com/labstack/echo/v4"
)

// IndexHandler 列出可用端點
// @Summary     API index
// @Description 回傳服務訊息與可用端點列表
// @Tags        meta
// @Produce     json
// @Success     200 {object} dto.IndexResponse
// @Router      / [get]
func IndexHandler() echo.HandlerFunc {
	resp := dto.IndexResponse{
		Message: "API is running",
		Endpoints: map[string]string{
			"/users":  "Get all users",
			"/health": "Health check",
		},
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, resp)
	}
}
