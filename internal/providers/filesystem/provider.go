package filesystem

import (
	"context"
	"fmt"

	"github.com/minimind-os/minimind/internal/shared/types"
)

// Provider exposes the sandboxed filesystem as a collaborator service.
// All paths are virtual; the active user from the call context decides
// what is writable.
type Provider struct {
	vfs *VFS
}

// NewProvider creates a filesystem provider
func NewProvider(vfs *VFS) *Provider {
	return &Provider{vfs: vfs}
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	tools := []types.Tool{
		{
			ID:          "filesystem.read",
			Name:        "Read File",
			Description: "Read file contents as text",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual file path", Required: true},
			},
			Returns: "string",
		},
		{
			ID:          "filesystem.write",
			Name:        "Write File",
			Description: "Write text contents to a file",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual file path", Required: true},
				{Name: "content", Type: "string", Description: "File contents", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.append",
			Name:        "Append File",
			Description: "Append text to a file, creating it if missing",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual file path", Required: true},
				{Name: "content", Type: "string", Description: "Text to append", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.delete",
			Name:        "Delete",
			Description: "Delete a file or empty directory",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual path", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.mkdir",
			Name:        "Create Directory",
			Description: "Create a directory, including parents",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual directory path", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.list",
			Name:        "List Directory",
			Description: "List entries of a directory",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual directory path", Required: true},
			},
			Returns: "array",
		},
		{
			ID:          "filesystem.exists",
			Name:        "Exists",
			Description: "Check whether a path exists",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual path", Required: true},
			},
			Returns: "boolean",
		},
		{
			ID:          "filesystem.info",
			Name:        "File Info",
			Description: "Metadata and MIME type for a path",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Virtual path", Required: true},
			},
			Returns: "object",
		},
	}
	tools = append(tools, formatTools()...)
	tools = append(tools, searchTools()...)
	tools = append(tools, archiveTools()...)

	return types.Service{
		ID:          "filesystem",
		Name:        "Filesystem Service",
		Description: "Sandboxed file storage with kid and parent permissions",
		Category:    types.CategoryFilesystem,
		Capabilities: []string{
			"read", "write", "list", "formats", "search", "backup",
		},
		Tools: tools,
	}
}

// Execute runs a filesystem tool
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, callCtx *types.Context) (*types.Result, error) {
	user := userFrom(callCtx)

	switch toolID {
	case "filesystem.read":
		return p.read(user, params)
	case "filesystem.write":
		return p.write(user, params)
	case "filesystem.append":
		return p.append(user, params)
	case "filesystem.delete":
		return p.delete(user, params)
	case "filesystem.mkdir":
		return p.mkdir(user, params)
	case "filesystem.list":
		return p.list(user, params)
	case "filesystem.exists":
		return p.exists(user, params)
	case "filesystem.info":
		return p.info(user, params)
	case "filesystem.json.read", "filesystem.json.write",
		"filesystem.yaml.read", "filesystem.yaml.write",
		"filesystem.toml.read", "filesystem.toml.write":
		return p.executeFormat(user, toolID, params)
	case "filesystem.glob":
		return p.glob(user, params)
	case "filesystem.backup.create", "filesystem.backup.restore":
		return p.executeArchive(user, toolID, params)
	default:
		return failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (p *Provider) read(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	data, err := p.vfs.Read(user, path)
	if err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{
		"content": string(data),
		"size":    len(data),
	})
}

func (p *Provider) write(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	content, ok := params["content"].(string)
	if !ok {
		return failure("content required")
	}
	if err := p.vfs.Write(user, path, []byte(content)); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"written": true, "path": path})
}

func (p *Provider) append(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	content, ok := params["content"].(string)
	if !ok {
		return failure("content required")
	}
	if err := p.vfs.Append(user, path, []byte(content)); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"appended": true, "path": path})
}

func (p *Provider) delete(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	if err := p.vfs.Delete(user, path); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"deleted": true, "path": path})
}

func (p *Provider) mkdir(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	if err := p.vfs.Mkdir(user, path); err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"created": true, "path": path})
}

func (p *Provider) list(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	entries, err := p.vfs.List(user, path)
	if err != nil {
		return failure(err.Error())
	}
	items := make([]interface{}, len(entries))
	for i, e := range entries {
		items[i] = map[string]interface{}{
			"name":     e.Name,
			"path":     e.Path,
			"size":     e.Size,
			"is_dir":   e.IsDir,
			"modified": e.Modified,
		}
	}
	return success(map[string]interface{}{"entries": items, "count": len(items)})
}

func (p *Provider) exists(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	ok, err := p.vfs.Exists(user, path)
	if err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{"exists": ok, "path": path})
}

func (p *Provider) info(user string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	fi, err := p.vfs.Info(user, path)
	if err != nil {
		return failure(err.Error())
	}
	return success(map[string]interface{}{
		"name":      fi.Name,
		"path":      fi.Path,
		"size":      fi.Size,
		"is_dir":    fi.IsDir,
		"modified":  fi.Modified,
		"mime_type": fi.MIMEType,
	})
}

func userFrom(callCtx *types.Context) string {
	if callCtx != nil && callCtx.User != "" {
		return callCtx.User
	}
	return "kid"
}

func getString(params map[string]interface{}, key string) string {
	if val, ok := params[key].(string); ok {
		return val
	}
	return ""
}

func success(data map[string]interface{}) (*types.Result, error) {
	return &types.Result{Success: true, Data: data}, nil
}

func failure(message string) (*types.Result, error) {
	msg := message
	return &types.Result{Success: false, Error: &msg}, nil
}
