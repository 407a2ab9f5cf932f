package conformance

import (
	"strings"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Query holds the conformance search parameters. The handler fills every
// field from the query string for every registry type; an empty field does
// not filter, and a supplied field that the resource lacks matches nothing.
type Query struct {
	URL        string
	Identifier *fhir.TokenParam
	Name       string
	Title      string
	Type       string
	Status     string
	ID         string
}

// Match applies the conjunctive filter set to a conformance resource.
func Match(res fhir.Resource, q Query) bool {
	if q.URL != "" && res.GetString("url") != q.URL {
		return false
	}
	if q.Identifier != nil && !matchesIdentifier(res, *q.Identifier) {
		return false
	}
	if q.Name != "" && !containsFold(res.GetString("name"), q.Name) {
		return false
	}
	if q.Title != "" && !containsFold(res.GetString("title"), q.Title) {
		return false
	}
	if q.Type != "" && res.GetString("type") != q.Type {
		return false
	}
	if q.Status != "" && res.GetString("status") != q.Status {
		return false
	}
	if q.ID != "" && res.ID() != q.ID {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	if haystack == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchesIdentifier(res fhir.Resource, t fhir.TokenParam) bool {
	for _, raw := range res.GetList("identifier") {
		ident, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		system, _ := ident["system"].(string)
		value, _ := ident["value"].(string)
		if t.MatchesCoding(system, value) {
			return true
		}
	}
	return false
}
