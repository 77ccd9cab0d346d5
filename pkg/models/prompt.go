package models

// PromptTemplate is prompt content with {{name}} placeholders.
type PromptTemplate struct {
	Content   string         `json:"content"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExpectationType is the kind of check applied to a model response.
type ExpectationType string

const (
	ExpectContains    ExpectationType = "contains"
	ExpectNotContains ExpectationType = "not_contains"
	ExpectRegex       ExpectationType = "regex"
)

// PromptExpectation validates a response server-side.
type PromptExpectation struct {
	Type        ExpectationType `json:"type"`
	Value       string          `json:"value,omitempty"`
	Description string          `json:"description,omitempty"`
}

// PromptTestConfig configures a prompt test run.
type PromptTestConfig struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Expectations []PromptExpectation `json:"expectations,omitempty"`
}

// ExpectationResult is the outcome of one expectation.
type ExpectationResult struct {
	Passed      bool   `json:"passed"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PromptTestResult is the outcome of a prompt test.
type PromptTestResult struct {
	Passed             bool                `json:"passed"`
	ExecutionTimeMs    int64               `json:"executionTime"`
	Response           any                 `json:"response"`
	ExpectationResults []ExpectationResult `json:"expectationResults,omitempty"`
	Error              string              `json:"error,omitempty"`
}

// EvaluationCriterion names a weighted scoring dimension for an A/B test.
type EvaluationCriterion struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight,omitempty"`
}

// ABTestConfig compares two prompt templates.
type ABTestConfig struct {
	Name               string                `json:"name"`
	Description        string                `json:"description,omitempty"`
	VariantA           PromptTemplate        `json:"variantA"`
	VariantB           PromptTemplate        `json:"variantB"`
	EvaluationCriteria []EvaluationCriterion `json:"evaluationCriteria,omitempty"`
}
