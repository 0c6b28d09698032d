package llm

// Request models
type GenerateRequest struct {
	Model       string                 `json:"model,omitempty"`
	Prompt      string                 `json:"prompt"`
	Context     string                 `json:"context,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
}

// Response models
type GenerateResponse struct {
	Content      string     `json:"content"`
	ModelUsed    string     `json:"model_used"`
	ProviderUsed string     `json:"provider_used"`
	TokensUsed   TokenUsage `json:"tokens_used"`
	LatencyMs    int64      `json:"latency_ms"`
	Confidence   float64    `json:"confidence,omitempty"`
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

type HealthStatus struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers,omitempty"`
}
