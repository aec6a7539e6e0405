package model

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/dataset"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	"github.com/ynkmn/reactoruq/internal/isolation"
	"github.com/ynkmn/reactoruq/internal/likelihood"
	"github.com/ynkmn/reactoruq/internal/pkg/circuitbreaker"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	"github.com/ynkmn/reactoruq/internal/reactor"
)

// Options carries the runtime dependencies needed to build a model.
type Options struct {
	// Workspace is required for process forward models.
	Workspace *isolation.Workspace
	Logger    *zap.Logger

	// Cache enables memoisation for forward models that ask for it.
	Cache        evaluator.Cache
	CacheBreaker *circuitbreaker.CircuitBreaker
	CachePrefix  string

	// DefaultTimeout applies to process models without their own timeout.
	DefaultTimeout time.Duration
	CaptureBytes   int
}

// Load parses and builds the model at path.
func Load(path string, opts Options) (*Model, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return f.Build(opts)
}

// Build loads the data, assembles the evaluator stack and returns the model.
func (f *File) Build(opts Options) (*Model, error) {
	log := logger.OrNop(opts.Logger).With(zap.String("model", f.Name))

	tbl, err := dataset.Load(f.resolve(f.Data.Path))
	if err != nil {
		return nil, err
	}
	observed, err := tbl.Observed(f.Data.ObservedColumn)
	if err != nil {
		return nil, err
	}
	var inputs *domain.ExogenousInputs
	if len(f.Data.ExogenousColumns) > 0 {
		if inputs, err = tbl.Exogenous(f.Data.ExogenousColumns); err != nil {
			return nil, err
		}
	}

	params := make([]Parameter, len(f.Parameters))
	names := make([]string, len(f.Parameters))
	for i, ps := range f.Parameters {
		p, err := ps.build()
		if err != nil {
			return nil, err
		}
		params[i] = p
		names[i] = p.Name
	}

	ev, fp, err := f.forward(tbl, names, inputs, len(observed), opts, log)
	if err != nil {
		return nil, err
	}
	ev = evaluator.Instrument(ev, log)
	if f.Forward.Cache && opts.Cache != nil {
		ev = evaluator.NewCached(ev, opts.Cache, evaluator.CacheOptions{
			Breaker:     opts.CacheBreaker,
			Prefix:      opts.CachePrefix,
			Fingerprint: fp.Add(strings.Join(names, ",")).String(),
		}, log)
	}

	noise, err := likelihood.LookupNoise(f.Noise.Model)
	if err != nil {
		return nil, err
	}
	lik, err := likelihood.New(ev, observed, likelihood.WithNoise(noise))
	if err != nil {
		return nil, err
	}

	cfg := Config{Name: f.Name, Parameters: params, Likelihood: lik}
	if f.Noise.Scale.Parameter != nil {
		p, err := f.Noise.Scale.Parameter.build()
		if err != nil {
			return nil, err
		}
		cfg.NoiseScale = &p
	} else {
		cfg.FixedScale = *f.Noise.Scale.Fixed
	}

	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug("model built",
		zap.String("forward", ev.Name()),
		zap.Int("observations", len(observed)),
		zap.Strings("parameters", m.Names()),
		zap.Bool("gradient", m.HasGradient()),
	)
	return m, nil
}

func (ps ParameterSpec) build() (Parameter, error) {
	p, err := ps.Prior.Build()
	if err != nil {
		return Parameter{}, apperrors.Configuration("parameter " + ps.Name + ": " + err.Error()).WithError(err)
	}
	return Parameter{Name: ps.Name, Prior: p, Initial: ps.Initial}, nil
}

// forward builds the forward evaluator and a fingerprint of everything its
// output depends on besides the parameters.
func (f *File) forward(tbl *dataset.Table, names []string, inputs *domain.ExogenousInputs, expected int, opts Options, log *zap.Logger) (evaluator.Evaluator, *evaluator.Fingerprint, error) {
	name := f.Forward.Name
	switch f.Forward.Kind {
	case ForwardProcess:
		return f.process(name, names, inputs, expected, opts, log)
	case ForwardLinear, ForwardRecalc:
		m, err := reactor.Lookup(f.Forward.Kind)
		if err != nil {
			return nil, nil, err
		}
		if len(names) != 2 {
			return nil, nil, apperrors.Configuration("reactor models need exactly 2 parameters")
		}
		binding := reactor.DefaultBinding
		switch len(f.Data.ExogenousColumns) {
		case 0:
			if inputs, err = tbl.Exogenous([]string{binding.Fuel, binding.Coolant}); err != nil {
				return nil, nil, err
			}
		case 2:
			binding = reactor.Binding{Fuel: f.Data.ExogenousColumns[0], Coolant: f.Data.ExogenousColumns[1]}
		default:
			return nil, nil, apperrors.Configuration("reactor models need exactly 2 exogenous columns, fuel then coolant")
		}
		if inputs.Rows() != expected {
			return nil, nil, apperrors.Configuration("exogenous inputs and observations differ in length")
		}
		ev, err := m.Evaluator(name, binding, inputs)
		if err != nil {
			return nil, nil, err
		}
		fp := evaluator.NewFingerprint().
			Add(f.Forward.Kind, name, binding.Fuel, binding.Coolant).
			AddInputs(inputs)
		return ev, fp, nil
	}
	return nil, nil, apperrors.Configuration("unknown forward kind " + f.Forward.Kind)
}

func (f *File) process(name string, names []string, inputs *domain.ExogenousInputs, expected int, opts Options, log *zap.Logger) (evaluator.Evaluator, *evaluator.Fingerprint, error) {
	spec := f.Forward.Process
	if opts.Workspace == nil {
		return nil, nil, apperrors.Configuration("process forward model needs an evaluation workspace")
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = opts.DefaultTimeout
	}

	var template string
	if spec.InputTemplate != "" {
		data, err := os.ReadFile(f.resolve(spec.InputTemplate))
		if err != nil {
			return nil, nil, apperrors.Configuration("cannot read input template").WithError(err)
		}
		template = string(data)
	}

	env := make([]string, len(spec.Env))
	copy(env, spec.Env)

	command := f.resolveCommand(spec.Command)
	ev, err := evaluator.NewProcess(evaluator.ProcessConfig{
		Name:           name,
		Command:        command,
		Args:           spec.Args,
		Dir:            f.resolve(spec.Dir),
		Env:            env,
		Timeout:        timeout,
		Names:          names,
		InputTemplate:  template,
		Precision:      spec.Precision,
		Output:         evaluator.OutputFormat{Column: spec.OutputColumn, Expected: expected},
		Exogenous:      inputs,
		WriteExogenous: spec.WriteExogenous,
		CaptureBytes:   opts.CaptureBytes,
	}, opts.Workspace, log)
	if err != nil {
		return nil, nil, err
	}

	fp := evaluator.NewFingerprint().
		Add(ForwardProcess, name, command, commandStamp(command), f.resolve(spec.Dir)).
		Add(strconv.Itoa(len(spec.Args))).Add(spec.Args...).
		Add(strconv.Itoa(len(env))).Add(env...).
		Add(template, spec.OutputColumn, strconv.Itoa(spec.Precision), strconv.FormatBool(spec.WriteExogenous), strconv.Itoa(expected)).
		AddInputs(inputs)
	return ev, fp, nil
}

// commandStamp identifies the current build of an executable given by path,
// so rebuilding the forward model invalidates its cached predictions.
func commandStamp(command string) string {
	info, err := os.Stat(command)
	if err != nil {
		return ""
	}
	return strconv.FormatInt(info.Size(), 10) + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
}
