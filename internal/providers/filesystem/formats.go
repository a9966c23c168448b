package filesystem

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/minimind-os/minimind/internal/shared/types"
)

// Structured-format tools. Reads parse into a generic object; writes
// marshal the "data" parameter. All paths go through the sandbox and
// its permission checks.

func formatTools() []types.Tool {
	return []types.Tool{
		{
			ID:          "filesystem.json.read",
			Name:        "Read JSON",
			Description: "Parse a JSON file into an object",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
			},
			Returns: "object",
		},
		{
			ID:          "filesystem.json.write",
			Name:        "Write JSON",
			Description: "Write an object as pretty-printed JSON",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "data", Type: "object", Description: "Data to write", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.yaml.read",
			Name:        "Read YAML",
			Description: "Parse a YAML file into an object",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
			},
			Returns: "object",
		},
		{
			ID:          "filesystem.yaml.write",
			Name:        "Write YAML",
			Description: "Write an object as YAML",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "data", Type: "object", Description: "Data to write", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.toml.read",
			Name:        "Read TOML",
			Description: "Parse a TOML file into an object",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
			},
			Returns: "object",
		},
		{
			ID:          "filesystem.toml.write",
			Name:        "Write TOML",
			Description: "Write an object as TOML",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File path", Required: true},
				{Name: "data", Type: "object", Description: "Data to write", Required: true},
			},
			Returns: "boolean",
		},
	}
}

func (p *Provider) executeFormat(user, toolID string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}

	switch toolID {
	case "filesystem.json.read", "filesystem.yaml.read", "filesystem.toml.read":
		raw, err := p.vfs.Read(user, path)
		if err != nil {
			return failure(err.Error())
		}
		var parsed interface{}
		switch toolID {
		case "filesystem.json.read":
			err = sonic.Unmarshal(raw, &parsed)
		case "filesystem.yaml.read":
			err = yaml.Unmarshal(raw, &parsed)
		case "filesystem.toml.read":
			err = toml.Unmarshal(raw, &parsed)
		}
		if err != nil {
			return failure(fmt.Sprintf("parse failed: %v", err))
		}
		return success(map[string]interface{}{"data": parsed})

	case "filesystem.json.write", "filesystem.yaml.write", "filesystem.toml.write":
		data, ok := params["data"]
		if !ok {
			return failure("data required")
		}
		var (
			raw []byte
			err error
		)
		switch toolID {
		case "filesystem.json.write":
			raw, err = sonic.MarshalIndent(data, "", "  ")
		case "filesystem.yaml.write":
			raw, err = yaml.Marshal(data)
		case "filesystem.toml.write":
			raw, err = toml.Marshal(data)
		}
		if err != nil {
			return failure(fmt.Sprintf("encode failed: %v", err))
		}
		if err := p.vfs.Write(user, path, raw); err != nil {
			return failure(err.Error())
		}
		return success(map[string]interface{}{"written": true, "path": path})
	}

	return failure(fmt.Sprintf("unknown tool: %s", toolID))
}
