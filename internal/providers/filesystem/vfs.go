package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
)

// Sandbox errors.
var (
	ErrInvalidPath = errors.New("path outside the sandbox")
	ErrPermission  = errors.New("permission denied")
	ErrNotFound    = errors.New("file not found")
)

// Top-level sandbox directories. Everything lives under one of these.
var roots = []string{"/system", "/kids", "/shared"}

// FileInfo represents file metadata
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	IsDir    bool      `json:"is_dir"`
	Modified time.Time `json:"modified"`
	MIMEType string    `json:"mime_type,omitempty"`
}

// VFS is the sandboxed store applications see. Virtual paths under
// /system, /kids, and /shared map onto a data directory on disk;
// anything else is rejected before touching the host filesystem.
//
// Permission model: the "parent" user may read and write everywhere;
// the "kid" user reads /system but only writes under /kids and
// /shared.
type VFS struct {
	root   string
	logger *logging.Logger
}

// NewVFS creates the sandbox rooted at dataPath, creating the
// top-level directories if missing.
func NewVFS(dataPath string, logger *logging.Logger) (*VFS, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	abs, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("resolve data path: %w", err)
	}
	for _, r := range roots {
		if err := os.MkdirAll(filepath.Join(abs, r), 0o755); err != nil {
			return nil, fmt.Errorf("create sandbox root %s: %w", r, err)
		}
	}
	logger.Info("Filesystem sandbox ready", zap.String("root", abs))
	return &VFS{root: abs, logger: logger}, nil
}

// Allowed reports whether user may access vpath with the given mode.
func (v *VFS) Allowed(user, vpath string, write bool) bool {
	if user == "parent" {
		return true
	}
	if !write {
		return true
	}
	return strings.HasPrefix(vpath, "/kids") || strings.HasPrefix(vpath, "/shared")
}

// Read returns the contents of a file.
func (v *VFS) Read(user, vpath string) ([]byte, error) {
	full, err := v.resolve(user, vpath, false)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, vpath)
	}
	return data, err
}

// Write stores contents, creating parent directories as needed.
func (v *VFS) Write(user, vpath string, data []byte) error {
	full, err := v.resolve(user, vpath, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

// Append adds data to the end of a file, creating it if missing.
func (v *VFS) Append(user, vpath string, data []byte) error {
	full, err := v.resolve(user, vpath, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Delete removes a file or empty directory.
func (v *VFS) Delete(user, vpath string) error {
	full, err := v.resolve(user, vpath, true)
	if err != nil {
		return err
	}
	if err := os.Remove(full); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, vpath)
	} else if err != nil {
		return err
	}
	return nil
}

// Mkdir creates a directory.
func (v *VFS) Mkdir(user, vpath string) error {
	full, err := v.resolve(user, vpath, true)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

// Exists reports whether a path exists.
func (v *VFS) Exists(user, vpath string) (bool, error) {
	full, err := v.resolve(user, vpath, false)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// List returns entries of a directory, sorted by name.
func (v *VFS) List(user, vpath string) ([]FileInfo, error) {
	full, err := v.resolve(user, vpath, false)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, vpath)
	} else if err != nil {
		return nil, err
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     e.Name(),
			Path:     path.Join(vpath, e.Name()),
			Size:     info.Size(),
			IsDir:    e.IsDir(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Info returns metadata for one path, including the detected MIME
// type for regular files.
func (v *VFS) Info(user, vpath string) (FileInfo, error) {
	full, err := v.resolve(user, vpath, false)
	if err != nil {
		return FileInfo{}, err
	}
	st, err := os.Stat(full)
	if os.IsNotExist(err) {
		return FileInfo{}, fmt.Errorf("%w: %s", ErrNotFound, vpath)
	} else if err != nil {
		return FileInfo{}, err
	}

	fi := FileInfo{
		Name:     st.Name(),
		Path:     vpath,
		Size:     st.Size(),
		IsDir:    st.IsDir(),
		Modified: st.ModTime(),
	}
	if !st.IsDir() {
		if mtype, err := mimetype.DetectFile(full); err == nil {
			fi.MIMEType = mtype.String()
		}
	}
	return fi, nil
}

// Root returns the on-disk sandbox root.
func (v *VFS) Root() string {
	return v.root
}

// resolve maps a virtual path to an on-disk path, rejecting anything
// that escapes the sandbox or the user's permissions.
func (v *VFS) resolve(user, vpath string, write bool) (string, error) {
	cleaned := path.Clean("/" + strings.TrimPrefix(vpath, "/"))
	valid := false
	for _, r := range roots {
		if cleaned == r || strings.HasPrefix(cleaned, r+"/") {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, vpath)
	}
	if !v.Allowed(user, cleaned, write) {
		v.logger.Warn("Permission denied",
			zap.String("user", user),
			zap.String("path", cleaned),
			zap.Bool("write", write),
		)
		return "", fmt.Errorf("%w: %s may not write %s", ErrPermission, user, cleaned)
	}
	return filepath.Join(v.root, filepath.FromSlash(cleaned)), nil
}
