// Package process implements the per-image pipeline: optional upscaling
// through the external Upscayl executable, normalization and re-encoding
// into a tagged JPEG, and input cleanup, with progress reported through
// caller-supplied callbacks.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Akhlaquea01/img-upscale/internal/domain"
	"github.com/Akhlaquea01/img-upscale/internal/imaging"
)

// DefaultModel is used when a batch does not name an upscaling model.
const DefaultModel = "realesrgan-x4plus"

// The executor contract is fixed: 4x scale, PNG intermediate output.
const (
	upscaleFactor = "4"
	upscaleFormat = "png"
)

// Stage names reported through Request.OnStage.
const (
	StagePrepare  = "prepare"
	StageUpscale  = "upscaling"
	StageOptimize = "optimizing"
	StageCleanup  = "cleanup"
)

// Workspace names the directories one pipeline run touches.
type Workspace struct {
	InputDir  string
	OutputDir string
	TempDir   string
}

// UpscaylConfig is a consistent snapshot of the upscaler configuration,
// captured once per dispatched file.
type UpscaylConfig struct {
	BinPath   string
	ModelsDir string
}

// Request contains one input file and execution callbacks for one run.
type Request struct {
	FileName  string
	Settings  domain.ProcessingSettings
	Workspace Workspace
	Upscayl   UpscaylConfig
	OnStage   func(stage string)
	OnNotice  func(message string)
	OnLog     func(log CommandLog)
}

// Result contains the produced artifact and execution details.
type Result struct {
	OutputName     string
	OutputPath     string
	UpscaleSkipped bool
	Logs           []CommandLog
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and progress events.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// imageNormalizer isolates the image transform library behind an interface.
type imageNormalizer interface {
	NormalizeToJPEG(ctx context.Context, srcPath, dstPath string, tags imaging.Tags) (imaging.SourceInfo, error)
}

// Pipeline orchestrates upscaling, normalization, and input cleanup.
type Pipeline struct {
	runner     commandRunner
	normalizer imageNormalizer
	stat       func(name string) (os.FileInfo, error)
	remove     func(name string) error
	mkdirAll   func(path string, perm os.FileMode) error
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline() *Pipeline {
	return &Pipeline{
		runner:     &execRunner{},
		normalizer: imaging.NewEncoder(),
		stat:       os.Stat,
		remove:     os.Remove,
		mkdirAll:   os.MkdirAll,
	}
}

// Run processes one image. On success the input file has been replaced by
// <stem>.jpg in the output directory and any intermediate upscaled file is
// gone. On failure the input file is left in place; an intermediate file
// may be orphaned. Cleanup runs only on the success path.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		return Result{}, &PipelineError{
			Stage:   StagePrepare,
			Message: "file name is required",
		}
	}

	inputPath := filepath.Join(req.Workspace.InputDir, fileName)
	if _, err := p.stat(inputPath); err != nil {
		return Result{}, &PipelineError{
			Stage:   StagePrepare,
			Message: fmt.Sprintf("cannot access input image: %s", inputPath),
			Err:     err,
		}
	}

	result := Result{OutputName: outputName(fileName)}
	currentPath := inputPath
	upscaledPath := ""

	if req.Settings.Upscale {
		if _, err := p.stat(req.Upscayl.BinPath); err != nil {
			// Soft-skip: a missing upscaler degrades the run, it does
			// not fail it.
			emitNotice(req.OnNotice, "Warning: Upscayl binary not found, skipping upscaling")
			result.UpscaleSkipped = true
		} else {
			emitStage(req.OnStage, StageUpscale)

			if err := p.mkdirAll(req.Workspace.TempDir, 0o755); err != nil {
				return result, &PipelineError{
					Stage:   StageUpscale,
					Message: fmt.Sprintf("cannot create temp directory: %s", req.Workspace.TempDir),
					Err:     err,
				}
			}

			upscaledPath = filepath.Join(req.Workspace.TempDir, upscaledName(fileName))
			model := strings.TrimSpace(req.Settings.Model)
			if model == "" {
				model = DefaultModel
			}

			args := buildUpscaylArgs(inputPath, upscaledPath, req.Upscayl.ModelsDir, model)
			cmdResult, runErr := p.runner.Run(ctx, req.Upscayl.BinPath, args...)
			cmdLog := CommandLog{
				Command:  req.Upscayl.BinPath,
				Args:     args,
				ExitCode: cmdResult.ExitCode,
				Stdout:   cmdResult.Stdout,
				Stderr:   cmdResult.Stderr,
			}
			emitLog(req.OnLog, cmdLog)
			if stderr := strings.TrimSpace(cmdResult.Stderr); stderr != "" {
				// Upscayl reports progress on stderr; logged, never fatal.
				log.Printf("upscayl: %s", stderr)
			}
			if runErr != nil {
				return result, &PipelineError{
					Stage:      StageUpscale,
					Message:    "upscayl invocation failed",
					CommandLog: cmdLog,
					Err:        runErr,
				}
			}
			if _, err := p.stat(upscaledPath); err != nil {
				return result, &PipelineError{
					Stage:      StageUpscale,
					Message:    "upscayl completed but upscaled file is missing",
					CommandLog: cmdLog,
					Err:        err,
				}
			}

			currentPath = upscaledPath
			result.Logs = append(result.Logs, cmdLog)
		}
	}

	emitStage(req.OnStage, StageOptimize)
	if err := p.mkdirAll(req.Workspace.OutputDir, 0o755); err != nil {
		return result, &PipelineError{
			Stage:   StageOptimize,
			Message: fmt.Sprintf("cannot create output directory: %s", req.Workspace.OutputDir),
			Err:     err,
		}
	}

	outputPath := filepath.Join(req.Workspace.OutputDir, result.OutputName)
	tags := imaging.Tags{
		Artist:      imaging.DefaultArtist,
		Copyright:   imaging.DefaultCopyright,
		Description: fileName,
	}
	info, err := p.normalizer.NormalizeToJPEG(ctx, currentPath, outputPath, tags)
	if err != nil {
		return result, &PipelineError{
			Stage:   StageOptimize,
			Message: "image normalization failed",
			Err:     err,
		}
	}
	// Diagnostic only; processing never branches on source metadata.
	log.Printf("process: %s source metadata: %s", fileName, info)
	result.OutputPath = outputPath

	if upscaledPath != "" && currentPath == upscaledPath {
		if err := p.remove(upscaledPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, &PipelineError{
				Stage:   StageCleanup,
				Message: fmt.Sprintf("cannot remove upscaled file: %s", upscaledPath),
				Err:     err,
			}
		}
	}

	// Deleting the input is what enforces process-at-most-once: a file
	// still present in the input directory has not been processed.
	if err := p.remove(inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, &PipelineError{
			Stage:   StageCleanup,
			Message: fmt.Sprintf("cannot remove input image: %s", inputPath),
			Err:     err,
		}
	}
	log.Printf("process: deleted input %s", inputPath)

	return result, nil
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitNotice forwards degraded-mode warnings when callback is configured.
func emitNotice(cb func(message string), message string) {
	if cb != nil {
		cb(message)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// buildUpscaylArgs builds the fixed executor invocation: input, output,
// scale factor, models directory, model name, output format.
func buildUpscaylArgs(inputPath, outputPath, modelsDir, model string) []string {
	return []string{
		"-i", inputPath,
		"-o", outputPath,
		"-s", upscaleFactor,
		"-m", modelsDir,
		"-n", model,
		"-f", upscaleFormat,
	}
}

// outputName builds the final JPEG filename from the input name.
func outputName(fileName string) string {
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if stem == "" || stem == "." {
		stem = "image"
	}
	return stem + ".jpg"
}

// upscaledName builds the intermediate upscaled filename.
func upscaledName(fileName string) string {
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	if stem == "" || stem == "." {
		stem = "image"
	}
	return stem + "-upscaled." + upscaleFormat
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	runner commandRunner,
	normalizer imageNormalizer,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
	mkdirAll func(path string, perm os.FileMode) error,
) *Pipeline {
	return &Pipeline{
		runner:     runner,
		normalizer: normalizer,
		stat:       stat,
		remove:     remove,
		mkdirAll:   mkdirAll,
	}
}
