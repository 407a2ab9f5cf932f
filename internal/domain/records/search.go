package records

import (
	"strings"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Typed search filters. Each resource type supplies a predicate per search
// parameter; unspecified parameters do not filter and all supplied
// parameters combine conjunctively.

// PatientQuery holds the Patient search parameters.
type PatientQuery struct {
	Identifier *fhir.TokenParam
	Name       string
	Family     string
	Given      string
	Birthdate  *fhir.DateRange
}

func MatchPatient(p fhir.Resource, q PatientQuery) bool {
	return matchesIdentifier(p, q.Identifier) &&
		matchesPatientName(p, q.Name) &&
		matchesFamily(p, q.Family) &&
		matchesGiven(p, q.Given) &&
		matchesBirthdate(p, q.Birthdate)
}

// ObservationQuery holds the Observation search parameters.
type ObservationQuery struct {
	Subject  string
	Code     *fhir.TokenParam
	Date     *fhir.DateRange
	Status   *fhir.TokenParam
	Category *fhir.TokenParam
}

func MatchObservation(o fhir.Resource, q ObservationQuery) bool {
	return matchesReferenceField(o.GetMap("subject"), q.Subject) &&
		matchesConceptCoding(o.GetMap("code"), q.Code) &&
		matchesEffectiveDate(o, q.Date) &&
		matchesStatus(o, q.Status) &&
		matchesCategory(o, q.Category)
}

// QuestionnaireResponseQuery holds the QuestionnaireResponse search
// parameters.
type QuestionnaireResponseQuery struct {
	Subject       string
	Questionnaire string
	Status        *fhir.TokenParam
	Authored      *fhir.DateRange
	Author        string
}

func MatchQuestionnaireResponse(qr fhir.Resource, q QuestionnaireResponseQuery) bool {
	return matchesReferenceField(qr.GetMap("subject"), q.Subject) &&
		matchesQuestionnaireRef(qr, q.Questionnaire) &&
		matchesStatus(qr, q.Status) &&
		matchesAuthored(qr, q.Authored) &&
		matchesReferenceField(qr.GetMap("author"), q.Author)
}

// -- shared matchers --

func matchesIdentifier(r fhir.Resource, t *fhir.TokenParam) bool {
	if t == nil {
		return true
	}
	for _, raw := range r.GetList("identifier") {
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

// matchesPatientName matches case-insensitive over the concatenation of
// family and given parts of every name.
func matchesPatientName(p fhir.Resource, query string) bool {
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, raw := range p.GetList("name") {
		name, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		var full strings.Builder
		if family, _ := name["family"].(string); family != "" {
			full.WriteString(strings.ToLower(family))
			full.WriteString(" ")
		}
		if given, ok := name["given"].([]interface{}); ok {
			for i, g := range given {
				if s, ok := g.(string); ok {
					if i > 0 {
						full.WriteString(" ")
					}
					full.WriteString(strings.ToLower(s))
				}
			}
		}
		if strings.Contains(full.String(), needle) {
			return true
		}
	}
	return false
}

func matchesFamily(p fhir.Resource, query string) bool {
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, raw := range p.GetList("name") {
		name, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if family, _ := name["family"].(string); family != "" {
			if strings.Contains(strings.ToLower(family), needle) {
				return true
			}
		}
	}
	return false
}

func matchesGiven(p fhir.Resource, query string) bool {
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, raw := range p.GetList("name") {
		name, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		given, _ := name["given"].([]interface{})
		for _, g := range given {
			if s, ok := g.(string); ok && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	return false
}

func matchesBirthdate(p fhir.Resource, r *fhir.DateRange) bool {
	if r == nil {
		return true
	}
	t, ok := fhir.ParseResourceTimestamp(p.GetString("birthDate"))
	if !ok {
		return false
	}
	return r.Contains(t)
}

func matchesReferenceField(ref map[string]interface{}, query string) bool {
	if query == "" {
		return true
	}
	if ref == nil {
		return false
	}
	stored, _ := ref["reference"].(string)
	return fhir.MatchesReference(stored, query)
}

func matchesConceptCoding(concept map[string]interface{}, t *fhir.TokenParam) bool {
	if t == nil {
		return true
	}
	if concept == nil {
		return false
	}
	codings, _ := concept["coding"].([]interface{})
	for _, raw := range codings {
		coding, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		system, _ := coding["system"].(string)
		code, _ := coding["code"].(string)
		if t.MatchesCoding(system, code) {
			return true
		}
	}
	return false
}

func matchesEffectiveDate(o fhir.Resource, r *fhir.DateRange) bool {
	if r == nil {
		return true
	}
	t, ok := fhir.ParseResourceTimestamp(o.GetString("effectiveDateTime"))
	if !ok {
		return false
	}
	return r.Contains(t)
}

// matchesStatus compares case-insensitively: statuses are enum-like codes.
func matchesStatus(r fhir.Resource, t *fhir.TokenParam) bool {
	if t == nil {
		return true
	}
	status := r.GetString("status")
	if status == "" {
		return false
	}
	return strings.EqualFold(status, t.Value)
}

func matchesCategory(o fhir.Resource, t *fhir.TokenParam) bool {
	if t == nil {
		return true
	}
	for _, raw := range o.GetList("category") {
		concept, ok := raw.(map[string]interface{})
		if ok && matchesConceptCoding(concept, t) {
			return true
		}
	}
	return false
}

func matchesAuthored(qr fhir.Resource, r *fhir.DateRange) bool {
	if r == nil {
		return true
	}
	t, ok := fhir.ParseResourceTimestamp(qr.GetString("authored"))
	if !ok {
		return false
	}
	return r.Contains(t)
}

// matchesQuestionnaireRef matches the canonical questionnaire element,
// which is a plain string rather than a Reference object.
func matchesQuestionnaireRef(qr fhir.Resource, query string) bool {
	if query == "" {
		return true
	}
	stored := qr.GetString("questionnaire")
	if stored == "" {
		return false
	}
	return stored == query ||
		strings.HasSuffix(stored, "/"+query) ||
		strings.Contains(stored, query)
}
