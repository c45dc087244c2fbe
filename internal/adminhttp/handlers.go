package adminhttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nyawka/phonixshop/internal/fulfillment"
	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/payments"
)

// AdminHandler is the operator surface: catalog management, credential
// upload and claim inspection. It is guarded by a static bearer token
// supplied via configuration.
type AdminHandler struct {
	Ledger   *ledger.Ledger
	Engine   *fulfillment.Engine
	Payments *payments.Reconciler
}

func (h *AdminHandler) CreateCategory(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cat, err := h.Ledger.CreateCategory(c.Request().Context(), req.Name)
	if err != nil {
		if errors.Is(err, ledger.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *AdminHandler) GetCategories(c echo.Context) error {
	cats, err := h.Ledger.Categories(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *AdminHandler) CreateProduct(c echo.Context) error {
	var req struct {
		CategoryID  uint    `json:"category_id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		ImageRef    string  `json:"image_ref"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	prod, err := h.Ledger.CreateProduct(c.Request().Context(), req.CategoryID, req.Name, req.Description, req.Price, req.ImageRef)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, prod)
}

type productWithStock struct {
	ID         uint    `json:"id"`
	CategoryID uint    `json:"category_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	ImageRef   string  `json:"image_ref,omitempty"`
	Available  int64   `json:"available"`
}

func (h *AdminHandler) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()

	prods, err := h.Ledger.Products(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := make([]productWithStock, 0, len(prods))
	for _, p := range prods {
		count, err := h.Ledger.AvailableCount(ctx, p.ID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		out = append(out, productWithStock{
			ID:         p.ID,
			CategoryID: p.CategoryID,
			Name:       p.Name,
			Price:      p.Price,
			ImageRef:   p.ImageRef,
			Available:  count,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// UploadUnit accepts a multipart .session file, verifies the credential
// is live and attaches it to the product.
func (h *AdminHandler) UploadUnit(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	file, err := c.FormFile("credential")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "credential file required")
	}
	if !strings.HasSuffix(file.Filename, ".session") {
		return echo.NewHTTPError(http.StatusBadRequest, "only .session files are accepted")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	unit, err := h.Engine.IngestUnit(c.Request().Context(), uint(id), src)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrDeadCredential):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "session is not authorized or dead")
		case errors.Is(err, ledger.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, unit)
}

// AbandonStarsClaim retires a pending star invoice whose checkout window
// lapsed. A retired claim can never credit, even if the platform delivers
// the payment push later.
func (h *AdminHandler) AbandonStarsClaim(c echo.Context) error {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Payload == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payload required")
	}

	if err := h.Payments.AbandonStars(c.Request().Context(), req.Payload); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) GetClaims(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	claims, err := h.Ledger.Claims(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, claims)
}
