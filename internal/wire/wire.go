// Package wire holds the JSON bodies exchanged with the generation and
// guardrail endpoints. The shapes follow the Bedrock runtime REST API so the
// same codec serves the SDK client, the plain HTTP client and the stub service.
package wire

import (
	"encoding/json"
	"strings"
)

const (
	// HeaderGuardrailID selects the guardrail applied to an invoke call
	HeaderGuardrailID = "X-Amzn-Bedrock-GuardrailIdentifier"
	// HeaderGuardrailVersion selects the guardrail version applied to an invoke call
	HeaderGuardrailVersion = "X-Amzn-Bedrock-GuardrailVersion"

	// StopReasonGuardrail is the stop reason reported when the guardrail intervened
	StopReasonGuardrail = "guardrail_intervened"
	// GuardrailActionIntervened is the action reported by the guardrail when it acted
	GuardrailActionIntervened = "INTERVENED"
	// ApplyActionIntervened is the ApplyGuardrail action when the guardrail acted
	ApplyActionIntervened = "GUARDRAIL_INTERVENED"
	// ApplyActionNone is the ApplyGuardrail action when the text passed
	ApplyActionNone = "NONE"
)

// ContentBlock is one piece of message content
type ContentBlock struct {
	Text string `json:"text"`
}

// Message is a single conversation turn
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// InferenceConfig carries sampling parameters
type InferenceConfig struct {
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
}

// InvokeRequest is the model invocation body
type InvokeRequest struct {
	Messages        []Message       `json:"messages"`
	InferenceConfig InferenceConfig `json:"inferenceConfig"`
}

// NewInvokeRequest builds a single-turn user request
func NewInvokeRequest(text string, inference InferenceConfig) InvokeRequest {
	return InvokeRequest{
		Messages: []Message{{
			Role:    "user",
			Content: []ContentBlock{{Text: text}},
		}},
		InferenceConfig: inference,
	}
}

// Prompt returns the concatenated text of every user turn
func (r InvokeRequest) Prompt() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role != "user" {
			continue
		}
		for _, c := range m.Content {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Usage reports token counts for a call
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// InvokeOutput wraps the generated message
type InvokeOutput struct {
	Message Message `json:"message"`
}

// InvokeResponse is the model invocation response body
type InvokeResponse struct {
	Output          InvokeOutput `json:"output"`
	StopReason      string       `json:"stopReason"`
	Usage           *Usage       `json:"usage,omitempty"`
	GuardrailAction string       `json:"amazon-bedrock-guardrailAction,omitempty"`
}

// Text returns the first text block of the output message
func (r InvokeResponse) Text() string {
	for _, c := range r.Output.Message.Content {
		if c.Text != "" {
			return c.Text
		}
	}
	return ""
}

// Intervened reports whether the guardrail acted on this response
func (r InvokeResponse) Intervened() bool {
	return r.StopReason == StopReasonGuardrail || r.GuardrailAction == GuardrailActionIntervened
}

// DecodeInvokeResponse parses a response body
func DecodeInvokeResponse(body []byte) (InvokeResponse, error) {
	var resp InvokeResponse
	err := json.Unmarshal(body, &resp)
	return resp, err
}

// GuardrailTextBlock is a text block submitted to ApplyGuardrail
type GuardrailTextBlock struct {
	Text string `json:"text"`
}

// GuardrailContent is one content item submitted to ApplyGuardrail
type GuardrailContent struct {
	Text GuardrailTextBlock `json:"text"`
}

// ApplyRequest is the ApplyGuardrail request body
type ApplyRequest struct {
	Source  string             `json:"source"` // INPUT or OUTPUT
	Content []GuardrailContent `json:"content"`
}

// NewApplyRequest builds an input-side check for text
func NewApplyRequest(text string) ApplyRequest {
	return ApplyRequest{
		Source:  "INPUT",
		Content: []GuardrailContent{{Text: GuardrailTextBlock{Text: text}}},
	}
}

// Text returns the concatenated submitted text
func (r ApplyRequest) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text.Text)
	}
	return strings.Join(parts, "\n")
}

// PIIEntity is one sensitive-information match reported by the guardrail
type PIIEntity struct {
	Type   string `json:"type"`
	Match  string `json:"match"`
	Action string `json:"action"`
}

// RegexMatch is one custom-regex match reported by the guardrail
type RegexMatch struct {
	Name   string `json:"name"`
	Match  string `json:"match"`
	Action string `json:"action"`
}

// SensitiveInformationAssessment groups PII findings
type SensitiveInformationAssessment struct {
	PIIEntities []PIIEntity  `json:"piiEntities,omitempty"`
	Regexes     []RegexMatch `json:"regexes,omitempty"`
}

// Assessment is one policy evaluation result
type Assessment struct {
	SensitiveInformationPolicy *SensitiveInformationAssessment `json:"sensitiveInformationPolicy,omitempty"`
}

// ApplyResponse is the ApplyGuardrail response body
type ApplyResponse struct {
	Action      string       `json:"action"`
	Assessments []Assessment `json:"assessments"`
}

// EntityTypes returns the distinct PII entity and regex names, in report order
func (r ApplyResponse) EntityTypes() []string {
	seen := make(map[string]bool)
	var types []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	for _, a := range r.Assessments {
		if a.SensitiveInformationPolicy == nil {
			continue
		}
		for _, e := range a.SensitiveInformationPolicy.PIIEntities {
			add(e.Type)
		}
		for _, m := range a.SensitiveInformationPolicy.Regexes {
			add(m.Name)
		}
	}
	return types
}
