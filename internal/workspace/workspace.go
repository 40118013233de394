package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Workspace is a host directory owned by exactly one execution.
type Workspace struct {
	Dir        string
	SourcePath string
}

type Manager struct {
	root   string
	logger *zerolog.Logger
}

// NewManager uses root as the parent for all workspaces; empty means
// $TMPDIR/codejudge.
func NewManager(root string, logger *zerolog.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "codejudge")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: abs, logger: logger}, nil
}

func (m *Manager) Root() string {
	return m.root
}

// With creates a fresh workspace holding fileName, runs fn and removes the
// directory tree on every return path, including panics.
func (m *Manager) With(tag, fileName string, source string, fn func(Workspace) error) error {
	ws, err := m.create(tag, fileName, source)
	if err != nil {
		return err
	}
	defer m.cleanup(ws.Dir)
	return fn(ws)
}

func (m *Manager) create(tag, fileName, source string) (Workspace, error) {
	name := fmt.Sprintf("%s_%d_%s", tag, time.Now().UnixNano(), uuid.New().String())
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	// the container user is unprivileged and writes compiled binaries here
	if err := os.Chmod(dir, 0o777); err != nil {
		_ = os.RemoveAll(dir)
		return Workspace{}, fmt.Errorf("chmod workspace: %w", err)
	}

	sourcePath := filepath.Join(dir, fileName)
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		_ = os.RemoveAll(dir)
		return Workspace{}, fmt.Errorf("write source: %w", err)
	}
	return Workspace{Dir: dir, SourcePath: sourcePath}, nil
}

func (m *Manager) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil && m.logger != nil {
		m.logger.Error().Err(err).Str("dir", dir).Msg("failed to remove workspace")
	}
}
