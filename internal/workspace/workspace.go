package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var ErrUploadFailed = errors.New("upload failed")

const stagedDir = "input"

type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

func (m *Manager) Root() string {
	return m.root
}

// Workspace is a directory owned by a single request. Nothing else writes to it.
type Workspace struct {
	ID  uuid.UUID
	Dir string
}

type Asset struct {
	Path         string
	OriginalName string
	Size         int64
}

func (m *Manager) Create() (*Workspace, error) {
	id := uuid.New()
	dir := filepath.Join(m.root, id.String())
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating workspace %s: %w", dir, err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// Save writes the stream to a fresh uuid-named file that keeps the extension of
// name. The stream is always closed. On failure the partial file is removed and
// a zero Asset is returned.
func (ws *Workspace) Save(name string, r io.ReadCloser) (Asset, error) {
	defer func() {
		if cerr := r.Close(); cerr != nil {
			slog.Warn("error closing upload stream", "name", name, "error", cerr)
		}
	}()

	path := filepath.Join(ws.Dir, uuid.New().String()+safeExt(name))

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		slog.Error("error creating upload file", "path", path, "error", err)
		return Asset{}, fmt.Errorf("%w: %s: %w", ErrUploadFailed, name, err)
	}

	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		slog.Error("error writing upload file", "path", path, "error", err)
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			slog.Warn("error removing partial upload", "path", path, "error", rerr)
		}
		return Asset{}, fmt.Errorf("%w: %s: %w", ErrUploadFailed, name, err)
	}

	return Asset{Path: path, OriginalName: name, Size: size}, nil
}

// Stage exposes the asset under <dir>/input/<stem><ext> for tools that derive
// their output name from the input name.
func (ws *Workspace) Stage(asset Asset, stem string) (string, error) {
	dir := filepath.Join(ws.Dir, stagedDir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("error creating staging dir: %w", err)
	}

	path := filepath.Join(dir, SanitizeStem(stem)+filepath.Ext(asset.Path))
	err := os.Link(asset.Path, path)
	if err == nil {
		return path, nil
	}
	slog.Debug("hard link failed, copying asset instead", "src", asset.Path, "error", err)

	if err := copyFile(asset.Path, path); err != nil {
		return "", fmt.Errorf("error staging %s: %w", asset.Path, err)
	}
	return path, nil
}

func (ws *Workspace) Remove() error {
	if err := os.RemoveAll(ws.Dir); err != nil {
		return fmt.Errorf("error removing workspace %s: %w", ws.Dir, err)
	}
	return nil
}

var (
	unsafeStemChars = regexp.MustCompile(`[^\w-]`)
	validExt        = regexp.MustCompile(`^\.\w{1,16}$`)
)

// safeExt keeps the extension of name when it is a plain alphanumeric suffix.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !validExt.MatchString(ext) {
		return ""
	}
	return ext
}

// SanitizeStem reduces a caller supplied file stem to [A-Za-z0-9_-].
func SanitizeStem(stem string) string {
	clean := unsafeStemChars.ReplaceAllString(stem, "_")
	if strings.Trim(clean, "_") == "" {
		return "video"
	}
	return clean
}

// Stem is the base name of a client supplied filename without its extension.
func Stem(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
