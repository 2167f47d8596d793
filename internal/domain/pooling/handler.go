package pooling

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/periop/periop/internal/domain/evidence"
	"github.com/periop/periop/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleCurator, auth.RoleAdmin))
	read.GET("/pooling/versions", h.ListVersions)
	read.GET("/pooling/baselines", h.ListBaselines)
	read.GET("/pooling/effects", h.ListEffects)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/pooling/run", h.Run)
}

func (h *Handler) Run(c echo.Context) error {
	info, err := h.svc.Run(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, info)
}

func (h *Handler) ListVersions(c echo.Context) error {
	versions, err := h.svc.Versions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	current := ""
	if snap := h.svc.Current(); snap != nil {
		current = snap.Version
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"current":  current,
		"versions": versions,
	})
}

func (h *Handler) snapshot(c echo.Context) (*Snapshot, error) {
	snap, err := h.svc.Snapshot(c.Request().Context(), c.QueryParam("version"))
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionNotFound):
			return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrNoCurrentVersion):
			return nil, echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return nil, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return snap, nil
}

func (h *Handler) ListBaselines(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	outcome := strings.ToUpper(c.QueryParam("outcome"))
	var items []*evidence.PooledBaseline
	for _, row := range snap.Baselines() {
		if outcome != "" && row.OutcomeToken != outcome {
			continue
		}
		items = append(items, row)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version": snap.Version,
		"items":   items,
	})
}

func (h *Handler) ListEffects(c echo.Context) error {
	snap, err := h.snapshot(c)
	if err != nil {
		return err
	}
	outcome := strings.ToUpper(c.QueryParam("outcome"))
	modifier := strings.ToUpper(c.QueryParam("modifier"))
	var items []*evidence.PooledEffect
	for _, row := range snap.Effects() {
		if outcome != "" && row.OutcomeToken != outcome {
			continue
		}
		if modifier != "" && row.ModifierToken != modifier {
			continue
		}
		items = append(items, row)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version": snap.Version,
		"items":   items,
	})
}
