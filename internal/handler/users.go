// File: internal/handler/users.go
package handler

import (
	"context"
	"errors"
	"net/http"

	"three-tier-lab/internal/cache"
	"three-tier-lab/internal/database"
	"three-tier-lab/internal/dto"

	"github.com/labstack/echo/v4"
)

// ListUsersHandler 取得所有使用者
// @Summary     List users
// @Description 依 id 排序回傳 users 資料表所有資料列
// @Tags        users
// @Produce     json
// @Success     200 {object} dto.UsersResponse
// @Failure     500 {object} dto.HTTPError "資料庫錯誤"
// @Router      /users [get]
func ListUsersHandler(db database.DB, cch cache.Cache, opts Options) echo.HandlerFunc {
	log := opts.logger()
	useCache := cch != nil && opts.CacheTTL > 0

	return func(c echo.Context) error {
		ctx := c.Request().Context()

		if useCache {
			var cached dto.UsersResponse
			err := cache.GetJSON(ctx, cch, usersCacheKey, &cached)
			if err == nil {
				return c.JSON(http.StatusOK, cached)
			}
			if !errors.Is(err, cache.ErrMiss) {
				log.WithError(err).Warn("users cache read failed")
			}
		}

		qctx, cancel := context.WithTimeout(ctx, opts.timeout())
		defer cancel()
		users, err := listUsers(qctx, db)
		if err != nil {
			log.WithError(err).Error("list users")
			return c.JSON(http.StatusInternalServerError, dto.HTTPError{Error: opts.errorText(err)})
		}

		resp := dto.NewUsersResponse(users)
		if useCache {
			if err := cache.SetJSON(ctx, cch, usersCacheKey, resp, opts.CacheTTL); err != nil {
				log.WithError(err).Warn("users cache write failed")
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}
