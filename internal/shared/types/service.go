package types

// Category represents collaborator service categories
type Category string

const (
	CategoryFilesystem Category = "filesystem"
	CategorySecurity   Category = "security"
	CategorySystem     Category = "system"
)

// Service represents a collaborator service definition
type Service struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     Category `json:"category"`
	Capabilities []string `json:"capabilities"`
	Tools        []Tool   `json:"tools"`
}

// Tool represents a service tool
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
}

// Parameter represents a tool parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context provides execution context for service calls. User is the
// active profile ("kid" or "parent"); PID is the calling process, when
// the call originates from a running application.
type Context struct {
	User string  `json:"user,omitempty"`
	PID  *uint32 `json:"pid,omitempty"`
}

// Result represents a service execution result
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *string                `json:"error,omitempty"`
}
