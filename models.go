package omnillm

import "strings"

// ModelInfo is the uniform descriptor for one provider model. Capability
// flags are derived from whatever metadata the provider's listing exposes;
// providers that expose none leave all flags false and counts zero.
type ModelInfo struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	DisplayName string `json:"display_name,omitempty"`

	ContextWindow   int  `json:"context_window,omitempty"`
	MaxOutputTokens *int `json:"max_output_tokens,omitempty"`

	SupportsTools     bool `json:"supports_tools"`
	SupportsVision    bool `json:"supports_vision"`
	SupportsReasoning bool `json:"supports_reasoning"`

	InputCostPerMillion  *float64 `json:"input_cost_per_million,omitempty"`
	OutputCostPerMillion *float64 `json:"output_cost_per_million,omitempty"`

	Aliases []string `json:"aliases,omitempty"`
}

// idContainsAny reports whether the model id contains any of the given
// fragments. Listing filters use it to drop non-completion models.
func idContainsAny(id string, fragments ...string) bool {
	lower := strings.ToLower(id)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
