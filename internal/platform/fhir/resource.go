package fhir

import (
	"fmt"
	"strconv"
	"time"
)

// Resource is a FHIR resource in its parsed JSON form. All resources that
// cross the provider boundary are deep copies; callers may mutate what they
// receive without affecting stored state.
type Resource map[string]interface{}

// User-data resource types, scoped per session.
const (
	TypePatient               = "Patient"
	TypeObservation           = "Observation"
	TypeQuestionnaireResponse = "QuestionnaireResponse"
)

// Conformance resource types, shared across all sessions.
const (
	TypeQuestionnaire       = "Questionnaire"
	TypeStructureDefinition = "StructureDefinition"
	TypeImplementationGuide = "ImplementationGuide"
)

// UserDataTypes lists the session-scoped resource types in hydration order.
var UserDataTypes = []string{TypePatient, TypeObservation, TypeQuestionnaireResponse}

// Type returns the resourceType element, or "" when absent.
func (r Resource) Type() string {
	t, _ := r["resourceType"].(string)
	return t
}

// ID returns the id element, or "" when absent.
func (r Resource) ID() string {
	id, _ := r["id"].(string)
	return id
}

// SetID sets the id element.
func (r Resource) SetID(id string) {
	r["id"] = id
}

// VersionID returns meta.versionId, or "" when absent.
func (r Resource) VersionID() string {
	meta, _ := r["meta"].(map[string]interface{})
	if meta == nil {
		return ""
	}
	v, _ := meta["versionId"].(string)
	return v
}

// Version returns meta.versionId as an integer, or 0 when absent or
// unparseable.
func (r Resource) Version() int64 {
	v, err := strconv.ParseInt(r.VersionID(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// StampMeta sets meta.versionId and meta.lastUpdated, creating the meta
// element when needed.
func (r Resource) StampMeta(version int64, at time.Time) {
	meta, _ := r["meta"].(map[string]interface{})
	if meta == nil {
		meta = map[string]interface{}{}
		r["meta"] = meta
	}
	meta["versionId"] = strconv.FormatInt(version, 10)
	meta["lastUpdated"] = at.UTC().Format(time.RFC3339)
}

// Clone returns a deep copy of the resource. The copy shares no mutable
// state with the original.
func (r Resource) Clone() Resource {
	if r == nil {
		return nil
	}
	return Resource(cloneMap(r))
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Resource:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// JSON scalars (string, float64, bool, nil) are immutable.
		return v
	}
}

// GetString returns the string value at the given top-level key.
func (r Resource) GetString(key string) string {
	s, _ := r[key].(string)
	return s
}

// GetList returns the slice value at the given top-level key, or nil.
func (r Resource) GetList(key string) []interface{} {
	l, _ := r[key].([]interface{})
	return l
}

// GetMap returns the object value at the given top-level key, or nil.
func (r Resource) GetMap(key string) map[string]interface{} {
	m, _ := r[key].(map[string]interface{})
	return m
}

// Ref returns the "Type/id" form of a resource reference.
func Ref(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}
