package fhir

// OperationOutcome is the FHIR error/result resource returned on failures.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{Severity: severity, Code: code, Diagnostics: diagnostics},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "processing", diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome("error", "not-found", resourceType+"/"+id+" not found")
}

// GoneOutcome is the 410 counterpart of NotFoundOutcome. The FHIR spec uses
// issue type "deleted" for tombstoned resources.
func GoneOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome("error", "deleted", resourceType+"/"+id+" has been deleted")
}

func UnauthenticatedOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "login", diagnostics)
}

func BadRequestOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", "invalid", diagnostics)
}
