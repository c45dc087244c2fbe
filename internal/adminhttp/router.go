package adminhttp

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Deps struct {
	AdminHandler *AdminHandler
	Token        string
}

func Register(e *echo.Echo, d *Deps) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	admin := e.Group("/api/v1/admin", requireToken(d.Token))

	admin.POST("/categories", d.AdminHandler.CreateCategory)
	admin.GET("/categories", d.AdminHandler.GetCategories)

	admin.POST("/products", d.AdminHandler.CreateProduct)
	admin.GET("/products", d.AdminHandler.GetProducts)
	admin.POST("/products/:id/units", d.AdminHandler.UploadUnit)

	admin.GET("/claims", d.AdminHandler.GetClaims)
	admin.POST("/claims/stars/abandon", d.AdminHandler.AbandonStarsClaim)
}

// requireToken guards the operator API with the configured static token.
// An empty configured token disables the API entirely.
func requireToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return echo.NewHTTPError(http.StatusForbidden, "admin api disabled")
			}
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			want := "Bearer " + token
			if subtle.ConstantTimeCompare([]byte(auth), []byte(want)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}
