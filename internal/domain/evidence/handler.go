package evidence

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/periop/periop/internal/platform/auth"
	"github.com/periop/periop/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleCurator, auth.RoleAdmin))
	read.GET("/evidence/papers", h.ListPapers)
	read.GET("/evidence/papers/:pmid", h.GetPaper)
	read.GET("/evidence/estimates", h.ListEstimates)
	read.GET("/evidence/coverage", h.Coverage)

	write := api.Group("", auth.RequireRole(auth.RoleCurator, auth.RoleAdmin))
	write.POST("/evidence/papers", h.CreatePaper)
	write.POST("/evidence/estimates", h.CreateEstimate)
	write.POST("/evidence/import", h.ImportBundle)
}

func (h *Handler) CreatePaper(c echo.Context) error {
	var p Paper
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePaper(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPaper(c echo.Context) error {
	p, err := h.svc.GetPaper(c.Request().Context(), c.Param("pmid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "paper not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPapers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPapers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) CreateEstimate(c echo.Context) error {
	var e Estimate
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateEstimate(c.Request().Context(), &e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListEstimates(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := EstimateFilter{
		OutcomeToken:  strings.ToUpper(c.QueryParam("outcome")),
		ModifierToken: strings.ToUpper(c.QueryParam("modifier")),
		ContextLabel:  c.QueryParam("context"),
		PMID:          c.QueryParam("pmid"),
	}
	if f.ContextLabel != "" {
		cctx, err := ParseContext(f.ContextLabel)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.ContextLabel = cctx.String()
	}
	items, total, err := h.svc.ListEstimates(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ImportBundle(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	report, err := h.svc.ImportBundle(c.Request().Context(), body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) Coverage(c echo.Context) error {
	report, err := h.svc.Coverage(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
