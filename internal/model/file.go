package model

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ynkmn/reactoruq/internal/prior"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/validator"
)

// Forward model kinds
const (
	ForwardProcess = "process"
	ForwardLinear  = "linear"
	ForwardRecalc  = "recalc"
)

// File is a model definition as written in YAML.
type File struct {
	Name       string          `yaml:"name" validate:"required,max=255"`
	Parameters []ParameterSpec `yaml:"parameters" validate:"required,min=1,dive"`
	Noise      NoiseSpec       `yaml:"noise"`
	Data       DataSpec        `yaml:"data"`
	Forward    ForwardSpec     `yaml:"forward"`

	// baseDir anchors relative paths; it is the directory of the file.
	baseDir string
}

// ParameterSpec declares one sampled parameter
type ParameterSpec struct {
	Name    string     `yaml:"name" validate:"required"`
	Prior   prior.Spec `yaml:"prior"`
	Initial *float64   `yaml:"initial,omitempty" validate:"omitempty,finite"`
}

// NoiseSpec selects the noise model and how its scale is obtained
type NoiseSpec struct {
	Model string    `yaml:"model,omitempty" validate:"omitempty,oneof=gaussian laplace"`
	Scale ScaleSpec `yaml:"scale"`
}

// ScaleSpec is either a fixed noise scale or a sampled parameter.
type ScaleSpec struct {
	Fixed     *float64       `yaml:"fixed,omitempty" validate:"omitempty,gt=0,finite"`
	Parameter *ParameterSpec `yaml:"parameter,omitempty"`
}

// DataSpec locates observed data and exogenous inputs
type DataSpec struct {
	Path             string   `yaml:"path" validate:"required"`
	ObservedColumn   string   `yaml:"observed_column" validate:"required"`
	ExogenousColumns []string `yaml:"exogenous_columns,omitempty"`
}

// ForwardSpec selects the forward model
type ForwardSpec struct {
	Kind    string       `yaml:"kind" validate:"required,oneof=process linear recalc"`
	Name    string       `yaml:"name,omitempty"`
	Cache   bool         `yaml:"cache,omitempty"`
	Process *ProcessSpec `yaml:"process,omitempty" validate:"required_if=Kind process"`
}

// ProcessSpec configures an external forward-model executable
type ProcessSpec struct {
	Command        string        `yaml:"command" validate:"required"`
	Args           []string      `yaml:"args,omitempty"`
	Dir            string        `yaml:"dir,omitempty"`
	Env            []string      `yaml:"env,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
	InputTemplate  string        `yaml:"input_template,omitempty"`
	Precision      int           `yaml:"precision,omitempty" validate:"min=0,max=17"`
	OutputColumn   string        `yaml:"output_column,omitempty"`
	WriteExogenous bool          `yaml:"write_exogenous,omitempty"`
}

// Parse decodes and validates a model definition. Relative paths inside
// are resolved against baseDir.
func Parse(data []byte, baseDir string) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, apperrors.Configuration("cannot parse model definition").WithError(err)
	}
	if err := validator.Validate(&f); err != nil {
		return nil, apperrors.Configuration("invalid model definition: " + err.Error()).WithError(err)
	}
	if f.Noise.Scale.Fixed == nil && f.Noise.Scale.Parameter == nil {
		return nil, apperrors.Configuration("noise.scale needs either fixed or parameter")
	}
	if f.Noise.Scale.Fixed != nil && f.Noise.Scale.Parameter != nil {
		return nil, apperrors.Configuration("noise.scale cannot be both fixed and a parameter")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, apperrors.Configuration("cannot resolve model directory").WithError(err)
	}
	f.baseDir = abs
	return &f, nil
}

// ParseFile reads a model definition from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Configuration("cannot read model file " + path).WithError(err)
	}
	return Parse(data, filepath.Dir(path))
}

// BaseDir returns the directory relative paths are resolved against
func (f *File) BaseDir() string {
	return f.baseDir
}

// resolve anchors a relative path at the model directory. Bare command
// names without a separator are left for PATH lookup.
func (f *File) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(f.baseDir, p)
}

func (f *File) resolveCommand(cmd string) string {
	if filepath.IsAbs(cmd) || filepath.Base(cmd) == cmd {
		return cmd
	}
	return f.resolve(cmd)
}
