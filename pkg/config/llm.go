package config

import (
	"sync"
	"time"
)

// SectionIDLLM is the identifier for the LLM settings section.
const SectionIDLLM = "llm"

// LLMSection manages the language model used to suggest replacement selectors.
type LLMSection struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	mu      sync.RWMutex
}

// NewLLMSection creates a new LLM section with default settings.
func NewLLMSection() *LLMSection {
	return &LLMSection{}
}

// ID returns the section identifier.
func (s *LLMSection) ID() string {
	return SectionIDLLM
}

// Title returns the section title.
func (s *LLMSection) Title() string {
	return "LLM Settings"
}

// Description returns the section description.
func (s *LLMSection) Description() string {
	return "OpenAI-compatible endpoint used by observe_refresh and the canvas fallback. Leave api_key empty to read OPENAI_API_KEY."
}

// Data returns the current configuration data.
func (s *LLMSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data := map[string]any{
		"model":    s.Model,
		"base_url": s.BaseURL,
		"api_key":  s.APIKey,
	}
	if s.Timeout > 0 {
		data["timeout"] = s.Timeout.String()
	}
	return data
}

// SetData updates the configuration from the provided data.
func (s *LLMSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	var in struct {
		Model   *string        `json:"model"`
		BaseURL *string        `json:"base_url"`
		APIKey  *string        `json:"api_key"`
		Timeout *time.Duration `json:"timeout"`
	}
	if err := decodeSection(data, &in); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Model != nil {
		s.Model = *in.Model
	}
	if in.BaseURL != nil {
		s.BaseURL = *in.BaseURL
	}
	if in.APIKey != nil {
		s.APIKey = *in.APIKey
	}
	if in.Timeout != nil {
		s.Timeout = *in.Timeout
	}
	return nil
}

// Validate validates the current configuration.
// The model is optional; a missing API key is reported when a provider is built.
func (s *LLMSection) Validate() error {
	return nil
}

// Reset resets the section to default configuration.
func (s *LLMSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = ""
	s.BaseURL = ""
	s.APIKey = ""
	s.Timeout = 0
}

// GetModel returns the configured model name.
func (s *LLMSection) GetModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Model
}

// SetModel sets the model name.
func (s *LLMSection) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = model
}

// GetBaseURL returns the configured base URL.
func (s *LLMSection) GetBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BaseURL
}

// GetAPIKey returns the configured API key.
func (s *LLMSection) GetAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIKey
}

// SetAPIKey sets the API key.
func (s *LLMSection) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.APIKey = apiKey
}

// GetTimeout returns the per-request timeout, or zero for the provider default.
func (s *LLMSection) GetTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Timeout
}
