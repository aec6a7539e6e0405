// Package isolation gives each forward-model evaluation a private scratch
// directory so that concurrent evaluations never share artifact paths.
package isolation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Artifact file names inside a scope
const (
	InputFile  = "input.dat"
	OutputFile = "output.dat"
)

// Workspace is the root under which evaluation scopes are created.
type Workspace struct {
	root string
}

// NewWorkspace creates the root directory if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if root == "" {
		return nil, apperrors.Configuration("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.Configuration("invalid workspace root").WithError(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, apperrors.Configuration("cannot create workspace root " + abs).WithError(err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root
func (w *Workspace) Root() string {
	return w.root
}

// Scope is the private directory of one evaluation.
type Scope struct {
	handle domain.EvaluationHandle
	dir    string
}

// Open creates the scope directory for handle. The directory must not exist:
// a collision is reported instead of shared.
func (w *Workspace) Open(handle domain.EvaluationHandle) (*Scope, error) {
	dir := filepath.Join(w.root, handle.String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.Internal("evaluation scope already exists").
				WithDetail("handle", handle.String())
		}
		return nil, apperrors.ProcessFailure("cannot create evaluation scope").WithError(err)
	}
	return &Scope{handle: handle, dir: dir}, nil
}

// With opens a scope for handle, runs fn and removes the scope afterwards,
// including when fn panics.
func (w *Workspace) With(handle domain.EvaluationHandle, fn func(*Scope) error) (err error) {
	scope, err := w.Open(handle)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(scope)
}

// Handle returns the evaluation handle owning this scope
func (s *Scope) Handle() domain.EvaluationHandle {
	return s.handle
}

// Dir returns the scope directory
func (s *Scope) Dir() string {
	return s.dir
}

// InputPath returns the path of the input artifact
func (s *Scope) InputPath() string {
	return s.Path(InputFile)
}

// OutputPath returns the path of the output artifact
func (s *Scope) OutputPath() string {
	return s.Path(OutputFile)
}

// Path returns the path of a named file inside the scope
func (s *Scope) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Close removes the scope directory and everything in it.
func (s *Scope) Close() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove evaluation scope %s: %w", s.dir, err)
	}
	return nil
}
