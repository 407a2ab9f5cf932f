package pod

import (
	"reflect"
	"testing"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

func examplePatient() fhir.Resource {
	return fhir.Resource{
		"resourceType": "Patient",
		"id":           "1",
		"active":       true,
		"birthDate":    "1987-04-12",
		"name": []interface{}{
			map[string]interface{}{
				"family": "Janssens",
				"given":  []interface{}{"Mieke", "Anna"},
			},
		},
		"meta": map[string]interface{}{
			"versionId":   "2",
			"lastUpdated": "2024-03-18T10:00:00Z",
		},
	}
}

func TestTurtleRoundTrip(t *testing.T) {
	original := examplePatient()
	turtle, err := EncodeTurtle(original, "https://pod.example/weare/fhir/Patient/1.ttl")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The encoder abbreviates IRIs with @prefix lines, so look for the
	// rdf:type triple in the parsed graph rather than in the raw text.
	triples, err := ParseTurtle(turtle)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	typed := false
	for _, tr := range triples {
		if tr.Pred.String() == rdfTypeIRI && tr.Obj.String() == "http://hl7.org/fhir/Patient" {
			typed = true
		}
	}
	if !typed {
		t.Errorf("expected resource type triple in turtle:\n%s", turtle)
	}

	decoded, err := DecodeTurtle(turtle)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(map[string]interface{}(original), map[string]interface{}(decoded)) {
		t.Errorf("round trip mismatch:\noriginal: %#v\ndecoded:  %#v", original, decoded)
	}
}

func TestTurtleRoundTrip_NumbersAndOrder(t *testing.T) {
	original := fhir.Resource{
		"resourceType": "Observation",
		"id":           "5",
		"status":       "final",
		"valueQuantity": map[string]interface{}{
			"value": 98.6,
			"unit":  "degF",
		},
		"component": []interface{}{
			map[string]interface{}{"text": "first"},
			map[string]interface{}{"text": "second"},
			map[string]interface{}{"text": "third"},
		},
	}
	turtle, err := EncodeTurtle(original, "https://pod.example/weare/fhir/Observation/5.ttl")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTurtle(turtle)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	components := decoded.GetList("component")
	if len(components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(components))
	}
	for i, want := range []string{"first", "second", "third"} {
		text := components[i].(map[string]interface{})["text"]
		if text != want {
			t.Errorf("component %d: expected %q, got %v", i, want, text)
		}
	}

	vq := decoded.GetMap("valueQuantity")
	if vq["value"] != 98.6 {
		t.Errorf("expected numeric value 98.6, got %v (%T)", vq["value"], vq["value"])
	}
}

func TestEncodeTurtle_MissingType(t *testing.T) {
	if _, err := EncodeTurtle(fhir.Resource{"id": "1"}, "https://pod.example/x.ttl"); err == nil {
		t.Error("expected error for resource without resourceType")
	}
}

func TestDecodeTurtle_Invalid(t *testing.T) {
	if _, err := DecodeTurtle("this is not turtle @@@"); err == nil {
		t.Error("expected parse error")
	}
}

func TestDecodeTurtle_NoRoot(t *testing.T) {
	turtle := `<http://example.org/a> <http://example.org/p> "value" .`
	if _, err := DecodeTurtle(turtle); err == nil {
		t.Error("expected error for document without a resource root")
	}
}

func TestParseTurtle_ValidatesContainerListing(t *testing.T) {
	listing := `@prefix ldp: <http://www.w3.org/ns/ldp#> .
<https://pod.example/weare/fhir/Patient/> ldp:contains <https://pod.example/weare/fhir/Patient/1.ttl> .`
	triples, err := ParseTurtle(listing)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	if triples[0].Pred.String() != "http://www.w3.org/ns/ldp#contains" {
		t.Errorf("unexpected predicate %s", triples[0].Pred.String())
	}
}
