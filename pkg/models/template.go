package models

// Template is the immutable blueprint an agent session is cloned from.
// Templates are created by operators and only ever read by the orchestrator.
type Template struct {
	ID           string         `yaml:"id"`
	Type         AgentType      `yaml:"type"`
	Model        string         `yaml:"model"`
	Tools        []string       `yaml:"tools,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty"`
	SystemPrompt string         `yaml:"-"`
}

// MetadataString reads a string metadata key, returning "" when absent.
func (t *Template) MetadataString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	v, _ := t.Metadata[key].(string)
	return v
}
