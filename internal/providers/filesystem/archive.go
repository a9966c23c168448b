package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/minimind-os/minimind/internal/shared/types"
)

func archiveTools() []types.Tool {
	return []types.Tool{
		{
			ID:          "filesystem.backup.create",
			Name:        "Create Backup",
			Description: "Compress a file into a .gz backup",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "File to back up", Required: true},
				{Name: "output", Type: "string", Description: "Backup path, defaults to path + .gz", Required: false},
			},
			Returns: "object",
		},
		{
			ID:          "filesystem.backup.restore",
			Name:        "Restore Backup",
			Description: "Decompress a .gz backup",
			Parameters: []types.Parameter{
				{Name: "path", Type: "string", Description: "Backup file", Required: true},
				{Name: "output", Type: "string", Description: "Restore path, defaults to path without .gz", Required: false},
			},
			Returns: "object",
		},
	}
}

func (p *Provider) executeArchive(user, toolID string, params map[string]interface{}) (*types.Result, error) {
	path := getString(params, "path")
	if path == "" {
		return failure("path required")
	}
	output := getString(params, "output")

	switch toolID {
	case "filesystem.backup.create":
		if output == "" {
			output = path + ".gz"
		}
		raw, err := p.vfs.Read(user, path)
		if err != nil {
			return failure(err.Error())
		}
		var buf bytes.Buffer
		gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if err != nil {
			return failure(err.Error())
		}
		if _, err := gz.Write(raw); err != nil {
			return failure(err.Error())
		}
		if err := gz.Close(); err != nil {
			return failure(err.Error())
		}
		if err := p.vfs.Write(user, output, buf.Bytes()); err != nil {
			return failure(err.Error())
		}
		return success(map[string]interface{}{
			"backup":          output,
			"original_size":   len(raw),
			"compressed_size": buf.Len(),
		})

	case "filesystem.backup.restore":
		if output == "" {
			if !strings.HasSuffix(path, ".gz") {
				return failure("output required when backup does not end in .gz")
			}
			output = strings.TrimSuffix(path, ".gz")
		}
		raw, err := p.vfs.Read(user, path)
		if err != nil {
			return failure(err.Error())
		}
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return failure(fmt.Sprintf("not a valid backup: %v", err))
		}
		restored, err := io.ReadAll(gz)
		if cerr := gz.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return failure(err.Error())
		}
		if err := p.vfs.Write(user, output, restored); err != nil {
			return failure(err.Error())
		}
		return success(map[string]interface{}{
			"restored": output,
			"size":     len(restored),
		})
	}

	return failure(fmt.Sprintf("unknown tool: %s", toolID))
}
