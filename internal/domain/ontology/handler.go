package ontology

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/periop/periop/internal/platform/auth"
	"github.com/periop/periop/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleAdmin))
	read.GET("/ontology/terms", h.listTerms)
	read.GET("/ontology/terms/:token", h.getTerm)

	write := api.Group("", auth.RequireRole(auth.RoleAdmin))
	write.POST("/ontology/terms", h.createTerm)
}

func (h *Handler) listTerms(c echo.Context) error {
	pg := pagination.FromContext(c)
	termType := strings.ToUpper(c.QueryParam("type"))
	items, total, err := h.svc.ListTerms(c.Request().Context(), termType, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) getTerm(c echo.Context) error {
	term, err := h.svc.GetTerm(c.Request().Context(), strings.ToUpper(c.Param("token")))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "term not found")
	}
	return c.JSON(http.StatusOK, term)
}

func (h *Handler) createTerm(c echo.Context) error {
	var term Term
	if err := c.Bind(&term); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	term.Token = strings.ToUpper(term.Token)
	if err := h.svc.CreateTerm(c.Request().Context(), &term); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, term)
}
