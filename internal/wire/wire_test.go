package wire

import (
	"reflect"
	"testing"
)

func TestIntervened(t *testing.T) {
	cases := map[string]struct {
		body string
		want bool
	}{
		"StopReason":  {`{"stopReason":"guardrail_intervened"}`, true},
		"ActionField": {`{"stopReason":"end_turn","amazon-bedrock-guardrailAction":"INTERVENED"}`, true},
		"Clean":       {`{"stopReason":"end_turn","amazon-bedrock-guardrailAction":"NONE"}`, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := DecodeInvokeResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if got := resp.Intervened(); got != tc.want {
				t.Errorf("Intervened() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInvokeRequestPrompt(t *testing.T) {
	req := NewInvokeRequest("Describe the water cycle.", InferenceConfig{MaxTokens: 64})
	if got := req.Prompt(); got != "Describe the water cycle." {
		t.Errorf("Prompt() = %q", got)
	}
}

func TestEntityTypes(t *testing.T) {
	resp := ApplyResponse{
		Action: ApplyActionIntervened,
		Assessments: []Assessment{
			{},
			{SensitiveInformationPolicy: &SensitiveInformationAssessment{
				PIIEntities: []PIIEntity{{Type: "EMAIL"}, {Type: "PHONE"}, {Type: "EMAIL"}},
				Regexes:     []RegexMatch{{Name: "employee_id"}},
			}},
		},
	}

	want := []string{"EMAIL", "PHONE", "employee_id"}
	if got := resp.EntityTypes(); !reflect.DeepEqual(got, want) {
		t.Errorf("EntityTypes() = %v, want %v", got, want)
	}
}
