package conformance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Handler exposes the conformance registries on the FHIR group. These
// routes are public: the auth middleware skips them by path.
type Handler struct {
	questionnaires *Registry
	profiles       *Registry
	guides         *Registry
}

func NewHandler(questionnaires, profiles, guides *Registry) *Handler {
	return &Handler{
		questionnaires: questionnaires,
		profiles:       profiles,
		guides:         guides,
	}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	for _, reg := range []*Registry{h.questionnaires, h.profiles, h.guides} {
		r := reg
		t := "/" + r.ResourceType()
		fhirGroup.GET(t, func(c echo.Context) error { return h.search(c, r) })
		fhirGroup.GET(t+"/:id", func(c echo.Context) error { return h.read(c, r) })
	}
}

func (h *Handler) read(c echo.Context, r *Registry) error {
	res := r.Get(c.Param("id"))
	if res == nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(r.ResourceType(), c.Param("id")))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) search(c echo.Context, r *Registry) error {
	q := Query{
		URL:    c.QueryParam("url"),
		Name:   c.QueryParam("name"),
		Title:  c.QueryParam("title"),
		Type:   c.QueryParam("type"),
		Status: c.QueryParam("status"),
		ID:     c.QueryParam("_id"),
	}
	if raw := c.QueryParam("identifier"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Identifier = &t
	}

	all := r.All()
	matched := make([]fhir.Resource, 0, len(all))
	for _, res := range all {
		if Match(res, q) {
			matched = append(matched, res)
		}
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(matched, "/fhir"))
}
