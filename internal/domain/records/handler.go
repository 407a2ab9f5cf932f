package records

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Handler exposes the session-scoped resource types on the FHIR group.
type Handler struct {
	patients  *Provider
	obs       *Provider
	responses *Provider
	basePath  string
}

func NewHandler(patients, observations, responses *Provider) *Handler {
	return &Handler{
		patients:  patients,
		obs:       observations,
		responses: responses,
		basePath:  "/fhir",
	}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	h.registerCRUD(fhirGroup, h.patients, h.SearchPatients)
	h.registerCRUD(fhirGroup, h.obs, h.SearchObservations)
	h.registerCRUD(fhirGroup, h.responses, h.SearchQuestionnaireResponses)
}

func (h *Handler) registerCRUD(g *echo.Group, p *Provider, search echo.HandlerFunc) {
	t := "/" + p.ResourceType()
	g.GET(t, search)
	g.POST(t, func(c echo.Context) error { return h.create(c, p) })
	g.GET(t+"/:id", func(c echo.Context) error { return h.read(c, p) })
	g.PUT(t+"/:id", func(c echo.Context) error { return h.update(c, p) })
	g.DELETE(t+"/:id", func(c echo.Context) error { return h.delete(c, p) })
	g.GET(t+"/:id/_history/:vid", func(c echo.Context) error { return h.vread(c, p) })
}

func (h *Handler) bindResource(c echo.Context, resourceType string) (fhir.Resource, error) {
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return nil, &fhir.BadRequestError{Reason: "unparseable resource body"}
	}
	res := fhir.Resource(body)
	if res.Type() != "" && res.Type() != resourceType {
		return nil, &fhir.BadRequestError{
			Reason: fmt.Sprintf("resource type %q does not match endpoint %q", res.Type(), resourceType),
		}
	}
	return res, nil
}

func (h *Handler) read(c echo.Context, p *Provider) error {
	res, err := p.Read(c.Request().Context(), c.Param("id"), nil)
	if err != nil {
		return h.writeError(c, p, c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) vread(c echo.Context, p *Provider) error {
	version, err := strconv.ParseInt(c.Param("vid"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.BadRequestOutcome("invalid version id"))
	}
	res, err := p.Read(c.Request().Context(), c.Param("id"), &version)
	if err != nil {
		return h.writeError(c, p, c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) create(c echo.Context, p *Provider) error {
	body, err := h.bindResource(c, p.ResourceType())
	if err != nil {
		return h.writeError(c, p, "", err)
	}
	created, err := p.Create(c.Request().Context(), body)
	if err != nil {
		return h.writeError(c, p, "", err)
	}
	location := fmt.Sprintf("%s/%s/%s/_history/%s", h.basePath, p.ResourceType(), created.ID(), created.VersionID())
	c.Response().Header().Set("Location", location)
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) update(c echo.Context, p *Provider) error {
	body, err := h.bindResource(c, p.ResourceType())
	if err != nil {
		return h.writeError(c, p, "", err)
	}
	updated, err := p.Update(c.Request().Context(), c.Param("id"), body)
	if err != nil {
		return h.writeError(c, p, c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) delete(c echo.Context, p *Provider) error {
	if err := p.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.writeError(c, p, c.Param("id"), err)
	}
	return c.JSON(http.StatusOK, fhir.NewOperationOutcome("information", "informational", "deleted"))
}

func (h *Handler) writeError(c echo.Context, p *Provider, id string, err error) error {
	switch {
	case err == fhir.ErrUnauthenticated:
		return c.JSON(http.StatusUnauthorized, fhir.UnauthenticatedOutcome("authentication required"))
	case fhir.IsGone(err):
		return c.JSON(http.StatusGone, fhir.GoneOutcome(p.ResourceType(), id))
	case fhir.IsNotFound(err):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(p.ResourceType(), id))
	default:
		var br *fhir.BadRequestError
		if errors.As(err, &br) {
			return c.JSON(http.StatusBadRequest, fhir.BadRequestOutcome(br.Reason))
		}
		return c.JSON(http.StatusInternalServerError, fhir.ErrorOutcome(err.Error()))
	}
}

// candidates resolves the search source: a supplied _id narrows to a single
// resource (absent or tombstoned yields an empty set), anything else starts
// from the full live set.
func (h *Handler) candidates(c echo.Context, p *Provider) ([]fhir.Resource, error) {
	if id := c.QueryParam("_id"); id != "" {
		return p.SearchByID(c.Request().Context(), id)
	}
	return p.SearchAll(c.Request().Context())
}

func (h *Handler) SearchPatients(c echo.Context) error {
	all, err := h.candidates(c, h.patients)
	if err != nil {
		return h.writeError(c, h.patients, "", err)
	}

	q := PatientQuery{
		Name:   c.QueryParam("name"),
		Family: c.QueryParam("family"),
		Given:  c.QueryParam("given"),
	}
	if raw := c.QueryParam("identifier"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Identifier = &t
	}
	if values := c.QueryParams()["birthdate"]; len(values) > 0 {
		r, err := fhir.ParseDateRange(values)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.BadRequestOutcome(err.Error()))
		}
		q.Birthdate = r
	}

	matched := make([]fhir.Resource, 0, len(all))
	for _, p := range all {
		if MatchPatient(p, q) {
			matched = append(matched, p)
		}
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(matched, h.basePath))
}

func (h *Handler) SearchObservations(c echo.Context) error {
	all, err := h.candidates(c, h.obs)
	if err != nil {
		return h.writeError(c, h.obs, "", err)
	}

	q := ObservationQuery{
		Subject: c.QueryParam("subject"),
	}
	if raw := c.QueryParam("code"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Code = &t
	}
	if raw := c.QueryParam("status"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Status = &t
	}
	if raw := c.QueryParam("category"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Category = &t
	}
	if values := c.QueryParams()["date"]; len(values) > 0 {
		r, err := fhir.ParseDateRange(values)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.BadRequestOutcome(err.Error()))
		}
		q.Date = r
	}

	matched := make([]fhir.Resource, 0, len(all))
	for _, o := range all {
		if MatchObservation(o, q) {
			matched = append(matched, o)
		}
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(matched, h.basePath))
}

func (h *Handler) SearchQuestionnaireResponses(c echo.Context) error {
	all, err := h.candidates(c, h.responses)
	if err != nil {
		return h.writeError(c, h.responses, "", err)
	}

	q := QuestionnaireResponseQuery{
		Subject:       c.QueryParam("subject"),
		Questionnaire: c.QueryParam("questionnaire"),
		Author:        c.QueryParam("author"),
	}
	if raw := c.QueryParam("status"); raw != "" {
		t := fhir.ParseToken(raw)
		q.Status = &t
	}
	if values := c.QueryParams()["authored"]; len(values) > 0 {
		r, err := fhir.ParseDateRange(values)
		if err != nil {
			return c.JSON(http.StatusBadRequest, fhir.BadRequestOutcome(err.Error()))
		}
		q.Authored = r
	}

	matched := make([]fhir.Resource, 0, len(all))
	for _, qr := range all {
		if MatchQuestionnaireResponse(qr, q) {
			matched = append(matched, qr)
		}
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(matched, h.basePath))
}
