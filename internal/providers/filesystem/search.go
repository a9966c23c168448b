package filesystem

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/minimind-os/minimind/internal/shared/types"
)

func searchTools() []types.Tool {
	return []types.Tool{
		{
			ID:          "filesystem.glob",
			Name:        "Find Files",
			Description: "Match files with a glob pattern, ** included",
			Parameters: []types.Parameter{
				{Name: "pattern", Type: "string", Description: "Glob pattern, e.g. /kids/**/*.txt", Required: true},
			},
			Returns: "array",
		},
	}
}

// glob matches virtual paths against a doublestar pattern. Patterns
// must stay inside the sandbox roots; matches come back as virtual
// paths.
func (p *Provider) glob(user string, params map[string]interface{}) (*types.Result, error) {
	pattern := getString(params, "pattern")
	if pattern == "" {
		return failure("pattern required")
	}

	rel := strings.TrimPrefix(pattern, "/")
	if rel == "" || strings.HasPrefix(rel, "..") {
		return failure(ErrInvalidPath.Error())
	}
	if !doublestar.ValidatePattern(rel) {
		return failure("invalid glob pattern")
	}

	matches, err := doublestar.Glob(os.DirFS(p.vfs.Root()), rel)
	if err != nil {
		return failure(err.Error())
	}

	paths := make([]interface{}, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, "/"+m)
	}
	return success(map[string]interface{}{"matches": paths, "count": len(paths)})
}
