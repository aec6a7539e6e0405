package evaluator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/isolation"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/id"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
)

// Argument placeholders substituted into ProcessConfig.Args
const (
	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderDir    = "{dir}"
	PlaceholderHandle = "{handle}"
)

// ExogenousFile is the name of the exogenous table written into each scope
const ExogenousFile = "exogenous.csv"

// Environment variables exported to the forward model
const (
	EnvInput  = "REACTORUQ_INPUT"
	EnvOutput = "REACTORUQ_OUTPUT"
	EnvHandle = "REACTORUQ_HANDLE"
)

// ProcessConfig configures an external forward model
type ProcessConfig struct {
	Name    string
	Command string
	// Args defaults to [{input}, {output}].
	Args []string
	// Dir is the working directory; empty runs inside the evaluation scope.
	Dir     string
	Env     []string
	Timeout time.Duration

	// Names fixes the parameter order written to the input artifact.
	Names         []string
	InputTemplate string
	Precision     int

	Output OutputFormat

	Exogenous      *domain.ExogenousInputs
	WriteExogenous bool

	// CaptureBytes bounds the retained stdout/stderr of a failed run.
	CaptureBytes int
}

// ProcessEvaluator runs one external process per evaluation inside an
// isolated scope and reads the prediction back from its output artifact.
type ProcessEvaluator struct {
	cfg       ProcessConfig
	workspace *isolation.Workspace
	template  *InputTemplate
	logger    *zap.Logger
}

// NewProcess validates cfg and returns a process evaluator.
func NewProcess(cfg ProcessConfig, workspace *isolation.Workspace, log *zap.Logger) (*ProcessEvaluator, error) {
	if cfg.Command == "" {
		return nil, apperrors.Configuration("process evaluator requires a command")
	}
	if workspace == nil {
		return nil, apperrors.Configuration("process evaluator requires a workspace")
	}
	if cfg.Timeout <= 0 {
		return nil, apperrors.Configuration("process evaluator requires a positive timeout")
	}
	if len(cfg.Names) == 0 {
		return nil, apperrors.Configuration("process evaluator requires parameter names")
	}
	if cfg.Name == "" {
		cfg.Name = "process"
	}
	if cfg.Precision <= 0 {
		cfg.Precision = DefaultPrecision
	}
	if cfg.Args == nil {
		cfg.Args = []string{PlaceholderInput, PlaceholderOutput}
	}
	if cfg.WriteExogenous && cfg.Exogenous == nil {
		return nil, apperrors.Configuration("write_exogenous set but no exogenous inputs bound")
	}

	e := &ProcessEvaluator{
		cfg:       cfg,
		workspace: workspace,
		logger:    logger.OrNop(log).With(zap.String("evaluator", cfg.Name)),
	}
	if cfg.InputTemplate != "" {
		tmpl, err := ParseInputTemplate(cfg.InputTemplate, cfg.Names)
		if err != nil {
			return nil, err
		}
		e.template = tmpl
	}
	return e, nil
}

// Name returns the evaluator name
func (e *ProcessEvaluator) Name() string {
	return e.cfg.Name
}

// Evaluate runs the forward model once. Artifacts are removed on every path.
func (e *ProcessEvaluator) Evaluate(ctx context.Context, params domain.ParameterVector) (domain.PredictedVector, error) {
	if err := e.checkParams(params); err != nil {
		return nil, err
	}

	handle := id.NewEvaluationHandle(ChainFrom(ctx))
	var pred domain.PredictedVector

	err := e.workspace.With(handle, func(scope *isolation.Scope) error {
		if err := e.writeInput(scope, params); err != nil {
			return err
		}
		if err := e.run(ctx, scope); err != nil {
			return err
		}
		out, err := e.readOutput(scope)
		if err != nil {
			return err
		}
		pred = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pred, nil
}

func (e *ProcessEvaluator) checkParams(params domain.ParameterVector) error {
	if params.Len() != len(e.cfg.Names) {
		return apperrors.Configuration(fmt.Sprintf("expected %d parameters, got %d", len(e.cfg.Names), params.Len()))
	}
	for i, n := range e.cfg.Names {
		if params.Names[i] != n {
			return apperrors.Configuration(fmt.Sprintf("parameter %d is %s, expected %s", i, params.Names[i], n))
		}
	}
	return nil
}

func (e *ProcessEvaluator) writeInput(scope *isolation.Scope, params domain.ParameterVector) error {
	f, err := os.OpenFile(scope.InputPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return apperrors.ProcessFailure("cannot create input artifact").WithError(err)
	}
	if e.template != nil {
		_, err = f.WriteString(e.template.Render(params, e.cfg.Precision))
	} else {
		err = WriteParameters(f, params, e.cfg.Precision)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return apperrors.ProcessFailure("cannot write input artifact").WithError(err)
	}

	if e.cfg.WriteExogenous {
		xf, err := os.Create(scope.Path(ExogenousFile))
		if err != nil {
			return apperrors.ProcessFailure("cannot create exogenous artifact").WithError(err)
		}
		err = WriteExogenous(xf, e.cfg.Exogenous)
		if cerr := xf.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return apperrors.ProcessFailure("cannot write exogenous artifact").WithError(err)
		}
	}
	return nil
}

func (e *ProcessEvaluator) args(scope *isolation.Scope) []string {
	r := strings.NewReplacer(
		PlaceholderInput, scope.InputPath(),
		PlaceholderOutput, scope.OutputPath(),
		PlaceholderDir, scope.Dir(),
		PlaceholderHandle, scope.Handle().String(),
	)
	args := make([]string, len(e.cfg.Args))
	for i, a := range e.cfg.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// run launches the forward model synchronously. A clean exit is success.
// Timeout, nonzero exit and spawn failure all map to PROCESS_FAILURE; only
// cancellation of ctx itself is reported as CANCELLED.
func (e *ProcessEvaluator) run(ctx context.Context, scope *isolation.Scope) error {
	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, e.cfg.Command, e.args(scope)...)
	cmd.Dir = scope.Dir()
	if e.cfg.Dir != "" {
		cmd.Dir = e.cfg.Dir
	}
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.Env = append(cmd.Env,
		EnvInput+"="+scope.InputPath(),
		EnvOutput+"="+scope.OutputPath(),
		EnvHandle+"="+scope.Handle().String(),
	)
	// Children that inherit stdout must not keep Wait blocked after a kill.
	cmd.WaitDelay = time.Second

	stdout := newCappedBuffer(e.cfg.CaptureBytes)
	stderr := newCappedBuffer(e.cfg.CaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	handle := scope.Handle().String()
	if err := e.outcome(ctx, execCtx, runErr, handle, stderr.String()); err != nil {
		return err
	}
	e.logger.Debug("forward model finished",
		zap.String("handle", handle),
		zap.Duration("duration", duration),
	)
	return nil
}

// outcome maps the result of cmd.Run to the error taxonomy. A clean exit is
// success even if the deadline expired while the process was being reaped.
func (e *ProcessEvaluator) outcome(ctx, execCtx context.Context, runErr error, handle, stderr string) error {
	if runErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return apperrors.Cancelled("evaluation cancelled").WithError(ctx.Err())
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		e.logger.Debug("forward model timed out",
			zap.String("handle", handle),
			zap.Duration("timeout", e.cfg.Timeout),
		)
		return apperrors.ProcessFailure(fmt.Sprintf("forward model exceeded timeout of %v", e.cfg.Timeout)).
			WithDetail("handle", handle).
			WithError(execCtx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		e.logger.Debug("forward model failed",
			zap.String("handle", handle),
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.String("stderr", stderr),
		)
		return apperrors.ProcessFailure(fmt.Sprintf("forward model exited with code %d", exitErr.ExitCode())).
			WithDetail("handle", handle).
			WithDetail("exit_code", strconv.Itoa(exitErr.ExitCode())).
			WithDetail("stderr", stderr).
			WithError(runErr)
	}
	return apperrors.ProcessFailure("failed to start forward model " + e.cfg.Command).WithError(runErr)
}

func (e *ProcessEvaluator) readOutput(scope *isolation.Scope) (domain.PredictedVector, error) {
	path := scope.OutputPath()
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return nil, apperrors.OutputMissing(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.OutputMissing(path).WithError(err)
	}
	defer f.Close()
	return ReadPrediction(f, e.cfg.Output)
}

// cappedBuffer keeps the first max bytes written and discards the rest.
type cappedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - len(b.buf)
	if room > 0 {
		n := min(room, len(p))
		b.buf = append(b.buf, p[:n]...)
	}
	if len(p) > room {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return string(b.buf) + "...(truncated)"
	}
	return string(b.buf)
}
