package pod

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// The pod speaks RDF/Turtle; the service speaks FHIR JSON. This converter
// maps the parsed JSON tree onto triples and back. Every JSON value becomes
// an element node: primitives carry their value on fhir:v, list members
// carry their position on fhir:index, objects carry their properties as
// fhir:<key> predicates. The resource root is typed fhir:<ResourceType> and
// marked fhir:nodeRole fhir:treeRoot.
const (
	fhirNS     = "http://hl7.org/fhir/"
	rdfTypeIRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdBoolean = "http://www.w3.org/2001/XMLSchema#boolean"
	xsdDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
	xsdInteger = "http://www.w3.org/2001/XMLSchema#integer"
	xsdDouble  = "http://www.w3.org/2001/XMLSchema#double"
)

type turtleEncoder struct {
	triples []rdf.Triple
	blanks  int
}

func (e *turtleEncoder) newBlank() rdf.Blank {
	e.blanks++
	b, _ := rdf.NewBlank(fmt.Sprintf("b%d", e.blanks))
	return b
}

func (e *turtleEncoder) add(subj rdf.Subject, pred rdf.Predicate, obj rdf.Object) {
	e.triples = append(e.triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
}

func mustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(fmt.Sprintf("invalid IRI %q: %v", s, err))
	}
	return iri
}

// EncodeTurtle serializes a resource as RDF/Turtle rooted at subjectURI.
func EncodeTurtle(res fhir.Resource, subjectURI string) (string, error) {
	if res.Type() == "" {
		return "", fmt.Errorf("resource has no resourceType")
	}
	root, err := rdf.NewIRI(subjectURI)
	if err != nil {
		return "", fmt.Errorf("invalid subject URI %q: %w", subjectURI, err)
	}

	e := &turtleEncoder{}
	e.add(root, mustIRI(rdfTypeIRI), mustIRI(fhirNS+res.Type()))
	e.add(root, mustIRI(fhirNS+"nodeRole"), mustIRI(fhirNS+"treeRoot"))

	if err := e.encodeObject(root, map[string]interface{}(res)); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.Turtle)
	if err := enc.EncodeAll(e.triples); err != nil {
		return "", fmt.Errorf("encode turtle: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("close turtle encoder: %w", err)
	}
	return buf.String(), nil
}

func (e *turtleEncoder) encodeObject(subj rdf.Subject, m map[string]interface{}) error {
	for key, value := range m {
		if key == "resourceType" {
			continue
		}
		pred := mustIRI(fhirNS + key)
		if list, ok := value.([]interface{}); ok {
			for i, member := range list {
				node := e.newBlank()
				e.add(subj, pred, node)
				idx, _ := rdf.NewLiteral(i)
				e.add(node, mustIRI(fhirNS+"index"), idx)
				if err := e.encodeValue(node, member); err != nil {
					return err
				}
			}
			continue
		}
		node := e.newBlank()
		e.add(subj, pred, node)
		if err := e.encodeValue(node, value); err != nil {
			return err
		}
	}
	return nil
}

func (e *turtleEncoder) encodeValue(node rdf.Subject, value interface{}) error {
	switch v := value.(type) {
	case map[string]interface{}:
		return e.encodeObject(node, v)
	case string:
		lit, err := rdf.NewLiteral(v)
		if err != nil {
			return err
		}
		e.add(node, mustIRI(fhirNS+"v"), lit)
	case bool:
		e.add(node, mustIRI(fhirNS+"v"), rdf.NewTypedLiteral(strconv.FormatBool(v), mustIRI(xsdBoolean)))
	case float64:
		e.add(node, mustIRI(fhirNS+"v"), rdf.NewTypedLiteral(strconv.FormatFloat(v, 'f', -1, 64), mustIRI(xsdDecimal)))
	case int:
		e.add(node, mustIRI(fhirNS+"v"), rdf.NewTypedLiteral(strconv.Itoa(v), mustIRI(xsdDecimal)))
	case nil:
		// JSON null carries no information on the wire.
	default:
		return fmt.Errorf("unsupported value type %T", value)
	}
	return nil
}

// ParseTurtle validates that the document is well-formed RDF and returns
// its triples.
func ParseTurtle(turtle string) ([]rdf.Triple, error) {
	dec := rdf.NewTripleDecoder(strings.NewReader(turtle), rdf.Turtle)
	triples, err := dec.DecodeAll()
	if err != nil {
		return nil, fmt.Errorf("parse turtle: %w", err)
	}
	return triples, nil
}

// DecodeTurtle rebuilds a resource from its RDF/Turtle form.
func DecodeTurtle(turtle string) (fhir.Resource, error) {
	triples, err := ParseTurtle(turtle)
	if err != nil {
		return nil, err
	}
	return decodeTriples(triples)
}

func termKey(t rdf.Term) string {
	return t.Serialize(rdf.NTriples)
}

func decodeTriples(triples []rdf.Triple) (fhir.Resource, error) {
	bySubject := make(map[string][]rdf.Triple)
	for _, t := range triples {
		k := termKey(t.Subj)
		bySubject[k] = append(bySubject[k], t)
	}

	rootKey, resourceType := findRoot(bySubject)
	if rootKey == "" {
		return nil, fmt.Errorf("no resource root found in turtle document")
	}

	value := decodeNode(bySubject, rootKey)
	m, ok := value.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{}
	}
	m["resourceType"] = resourceType
	return fhir.Resource(m), nil
}

func findRoot(bySubject map[string][]rdf.Triple) (string, string) {
	for key, ts := range bySubject {
		var isRoot bool
		var resourceType string
		for _, t := range ts {
			pred := t.Pred.String()
			switch pred {
			case fhirNS + "nodeRole":
				if t.Obj.String() == fhirNS+"treeRoot" {
					isRoot = true
				}
			case rdfTypeIRI:
				if strings.HasPrefix(t.Obj.String(), fhirNS) {
					resourceType = strings.TrimPrefix(t.Obj.String(), fhirNS)
				}
			}
		}
		if isRoot && resourceType != "" {
			return key, resourceType
		}
	}
	return "", ""
}

type listMember struct {
	index int64
	value interface{}
}

// decodeNode reconstructs the JSON value rooted at the given subject. An
// element node with fhir:v is a primitive; anything else is an object whose
// fhir:-namespaced predicates become keys. Members carrying fhir:index fold
// into ordered lists.
func decodeNode(bySubject map[string][]rdf.Triple, key string) interface{} {
	ts := bySubject[key]

	for _, t := range ts {
		if t.Pred.String() == fhirNS+"v" {
			return literalValue(t.Obj)
		}
	}

	obj := make(map[string]interface{})
	members := make(map[string][]listMember)
	for _, t := range ts {
		pred := t.Pred.String()
		if pred == rdfTypeIRI || pred == fhirNS+"nodeRole" || pred == fhirNS+"index" {
			continue
		}
		if !strings.HasPrefix(pred, fhirNS) {
			continue
		}
		name := strings.TrimPrefix(pred, fhirNS)
		childKey := termKey(t.Obj)
		idx, indexed := memberIndex(bySubject[childKey])
		value := decodeNode(bySubject, childKey)
		if indexed {
			members[name] = append(members[name], listMember{index: idx, value: value})
		} else {
			obj[name] = value
		}
	}

	for name, ms := range members {
		sort.Slice(ms, func(i, j int) bool { return ms[i].index < ms[j].index })
		list := make([]interface{}, len(ms))
		for i, m := range ms {
			list[i] = m.value
		}
		obj[name] = list
	}

	return obj
}

func memberIndex(ts []rdf.Triple) (int64, bool) {
	for _, t := range ts {
		if t.Pred.String() == fhirNS+"index" {
			if lit, ok := t.Obj.(rdf.Literal); ok {
				if i, err := strconv.ParseInt(lit.String(), 10, 64); err == nil {
					return i, true
				}
			}
		}
	}
	return 0, false
}

func literalValue(obj rdf.Object) interface{} {
	lit, ok := obj.(rdf.Literal)
	if !ok {
		return obj.String()
	}
	switch lit.DataType.String() {
	case xsdBoolean:
		b, _ := strconv.ParseBool(lit.String())
		return b
	case xsdDecimal, xsdInteger, xsdDouble:
		f, _ := strconv.ParseFloat(lit.String(), 64)
		return f
	default:
		return lit.String()
	}
}
