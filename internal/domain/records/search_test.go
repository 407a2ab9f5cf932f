package records

import (
	"testing"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

func namedPatient(family string, given ...string) fhir.Resource {
	givenList := make([]interface{}, len(given))
	for i, g := range given {
		givenList[i] = g
	}
	return fhir.Resource{
		"resourceType": "Patient",
		"name": []interface{}{
			map[string]interface{}{"family": family, "given": givenList},
		},
		"birthDate": "1987-04-12",
		"identifier": []interface{}{
			map[string]interface{}{"system": "urn:test", "value": "id-" + family},
		},
	}
}

func observation(code, status, subject, effective string) fhir.Resource {
	return fhir.Resource{
		"resourceType": "Observation",
		"status":       status,
		"code": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{"system": "http://snomed.info/sct", "code": code},
			},
		},
		"category": []interface{}{
			map[string]interface{}{
				"coding": []interface{}{
					map[string]interface{}{"code": "vital-signs"},
				},
			},
		},
		"subject":           map[string]interface{}{"reference": subject},
		"effectiveDateTime": effective,
	}
}

func TestMatchPatient_Name(t *testing.T) {
	p := namedPatient("Janssens", "Mieke", "Anna")

	// name matches over family + given concatenation, case-insensitive
	if !MatchPatient(p, PatientQuery{Name: "janssens"}) {
		t.Error("family part must match name query")
	}
	if !MatchPatient(p, PatientQuery{Name: "mieke"}) {
		t.Error("given part must match name query")
	}
	if MatchPatient(p, PatientQuery{Name: "nobody"}) {
		t.Error("non-matching name must not match")
	}
	if !MatchPatient(p, PatientQuery{Family: "JANS"}) {
		t.Error("family is a case-insensitive substring match")
	}
	if !MatchPatient(p, PatientQuery{Given: "anna"}) {
		t.Error("given is a case-insensitive substring match")
	}
	if MatchPatient(p, PatientQuery{Given: "zoe"}) {
		t.Error("unknown given must not match")
	}
}

func TestMatchPatient_Identifier(t *testing.T) {
	p := namedPatient("Doe")
	tok := fhir.ParseToken("id-Doe")
	if !MatchPatient(p, PatientQuery{Identifier: &tok}) {
		t.Error("bare identifier value must match")
	}
	pinned := fhir.ParseToken("urn:test|id-Doe")
	if !MatchPatient(p, PatientQuery{Identifier: &pinned}) {
		t.Error("system|value identifier must match")
	}
	wrong := fhir.ParseToken("urn:other|id-Doe")
	if MatchPatient(p, PatientQuery{Identifier: &wrong}) {
		t.Error("wrong system must not match")
	}
}

func TestMatchPatient_Birthdate(t *testing.T) {
	p := namedPatient("Doe")
	in, err := fhir.ParseDateRange([]string{"ge1987-01-01", "le1987-12-31"})
	if err != nil {
		t.Fatal(err)
	}
	if !MatchPatient(p, PatientQuery{Birthdate: in}) {
		t.Error("birthdate inside range must match")
	}
	out, _ := fhir.ParseDateRange([]string{"ge1990-01-01"})
	if MatchPatient(p, PatientQuery{Birthdate: out}) {
		t.Error("birthdate outside range must not match")
	}

	// resource without birthDate never matches a range query
	noBirth := fhir.Resource{"resourceType": "Patient"}
	if MatchPatient(noBirth, PatientQuery{Birthdate: in}) {
		t.Error("missing birthDate must not match a range query")
	}
}

func TestMatchPatient_EmptyQueryMatchesAll(t *testing.T) {
	if !MatchPatient(namedPatient("Doe"), PatientQuery{}) {
		t.Error("empty query must match everything")
	}
}

func TestMatchObservation_Code(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "2024-03-18T09:30:00Z")

	code := fhir.ParseToken("27113001")
	if !MatchObservation(o, ObservationQuery{Code: &code}) {
		t.Error("bare code must match")
	}
	pinned := fhir.ParseToken("http://snomed.info/sct|27113001")
	if !MatchObservation(o, ObservationQuery{Code: &pinned}) {
		t.Error("pinned system code must match")
	}
	other := fhir.ParseToken("60621009")
	if MatchObservation(o, ObservationQuery{Code: &other}) {
		t.Error("different code must not match")
	}
}

func TestMatchObservation_Subject(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "")
	for _, q := range []string{"Patient/1", "1"} {
		if !MatchObservation(o, ObservationQuery{Subject: q}) {
			t.Errorf("subject %q must match Patient/1", q)
		}
	}
	if MatchObservation(o, ObservationQuery{Subject: "2"}) {
		t.Error("different subject must not match")
	}
}

func TestMatchObservation_StatusCaseInsensitive(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "")
	status := fhir.ParseToken("FINAL")
	if !MatchObservation(o, ObservationQuery{Status: &status}) {
		t.Error("status matching is case-insensitive")
	}
}

func TestMatchObservation_Category(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "")
	cat := fhir.ParseToken("vital-signs")
	if !MatchObservation(o, ObservationQuery{Category: &cat}) {
		t.Error("category code must match")
	}
	other := fhir.ParseToken("laboratory")
	if MatchObservation(o, ObservationQuery{Category: &other}) {
		t.Error("different category must not match")
	}
}

func TestMatchObservation_DateRange(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "2024-03-18T09:30:00Z")
	in, _ := fhir.ParseDateRange([]string{"ge2024-03-01", "le2024-04-01"})
	if !MatchObservation(o, ObservationQuery{Date: in}) {
		t.Error("effective date inside range must match")
	}
	out, _ := fhir.ParseDateRange([]string{"ge2025-01-01"})
	if MatchObservation(o, ObservationQuery{Date: out}) {
		t.Error("effective date outside range must not match")
	}

	noDate := observation("27113001", "final", "Patient/1", "")
	if MatchObservation(noDate, ObservationQuery{Date: in}) {
		t.Error("missing effective date must not match a range query")
	}
}

func questionnaireResponse(subject, questionnaire, status, authored, author string) fhir.Resource {
	qr := fhir.Resource{
		"resourceType":  "QuestionnaireResponse",
		"status":        status,
		"questionnaire": questionnaire,
		"subject":       map[string]interface{}{"reference": subject},
	}
	if authored != "" {
		qr["authored"] = authored
	}
	if author != "" {
		qr["author"] = map[string]interface{}{"reference": author}
	}
	return qr
}

func TestMatchQuestionnaireResponse(t *testing.T) {
	qr := questionnaireResponse(
		"Patient/1",
		"https://welldata.example.org/fhir/Questionnaire/wellbeing-check",
		"completed",
		"2024-03-19T14:05:00Z",
		"Practitioner/9",
	)

	if !MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Subject: "1"}) {
		t.Error("bare subject id must match")
	}
	// questionnaire matches exact, suffix, and substring forms
	for _, q := range []string{
		"https://welldata.example.org/fhir/Questionnaire/wellbeing-check",
		"wellbeing-check",
	} {
		if !MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Questionnaire: q}) {
			t.Errorf("questionnaire %q must match", q)
		}
	}
	if MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Questionnaire: "other-form"}) {
		t.Error("different questionnaire must not match")
	}

	status := fhir.ParseToken("completed")
	if !MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Status: &status}) {
		t.Error("status must match")
	}
	if !MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Author: "Practitioner/9"}) {
		t.Error("author reference must match")
	}
	if MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Author: "Practitioner/2"}) {
		t.Error("different author must not match")
	}

	in, _ := fhir.ParseDateRange([]string{"2024-03-19"})
	if !MatchQuestionnaireResponse(qr, QuestionnaireResponseQuery{Authored: in}) {
		t.Error("authored on the day must match")
	}

	noAuthored := questionnaireResponse("Patient/1", "x", "completed", "", "")
	if MatchQuestionnaireResponse(noAuthored, QuestionnaireResponseQuery{Authored: in}) {
		t.Error("missing authored must not match a range query")
	}
}

func TestMatchConjunction(t *testing.T) {
	o := observation("27113001", "final", "Patient/1", "2024-03-18T09:30:00Z")
	code := fhir.ParseToken("27113001")
	// all parameters must hold together
	if MatchObservation(o, ObservationQuery{Code: &code, Subject: "2"}) {
		t.Error("conjunctive query with one failing parameter must not match")
	}
	if !MatchObservation(o, ObservationQuery{Code: &code, Subject: "1"}) {
		t.Error("conjunctive query with all passing parameters must match")
	}
}
