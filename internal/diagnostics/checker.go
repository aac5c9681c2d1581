// Package diagnostics validates the processing environment: the external
// upscaler install, its models directory, and the workspace directories.
package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Akhlaquea01/img-upscale/internal/config"
	"github.com/Akhlaquea01/img-upscale/internal/domain"
)

// Checker validates the upscaler install and required filesystem paths.
type Checker struct {
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all environment checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkUpscaylBin(settings.UpscaylBin),
		c.checkModelsDir(config.ModelsDirFor(settings.UpscaylBin)),
		c.checkWritableDir("input_dir", "Input directory", settings.InputDir),
		c.checkWritableDir("output_dir", "Output directory", settings.OutputDir),
		c.checkWritableDir("temp_dir", "Temp directory", settings.TempDir),
		c.checkWritableDir("upload_dir", "Upload directory", settings.UploadDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkUpscaylBin verifies the configured upscaler executable exists.
// A failure here is advisory: processing soft-skips the upscale stage.
func (c *Checker) checkUpscaylBin(binPath string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "upscayl_bin",
		Name: "Upscayl executable",
	}

	if strings.TrimSpace(binPath) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Upscayl path is empty."
		item.Hint = "Point the configuration at the upscayl-bin executable inside an Upscayl install."
		return item
	}

	info, err := c.stat(binPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Upscayl executable not found: %s", binPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access Upscayl executable: %s", binPath)
		}
		item.Hint = "Install Upscayl or update the executable path; images still process without upscaling."
		return item
	}
	if info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Upscayl path is a directory: %s", binPath)
		item.Hint = "Point the configuration at the upscayl-bin executable itself."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Found at %s", binPath)
	return item
}

// checkModelsDir validates the derived models directory holds NCNN model
// pairs (.bin weights next to .param descriptions).
func (c *Checker) checkModelsDir(modelsDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "models_dir",
		Name: "Models directory",
	}

	if strings.TrimSpace(modelsDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Models directory could not be derived."
		item.Hint = "Set the Upscayl executable path so the models directory can be derived from it."
		return item
	}

	entries, err := c.readDir(modelsDir)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Models directory does not exist: %s", modelsDir)
		} else {
			item.Message = fmt.Sprintf("Cannot read models directory: %s", modelsDir)
		}
		item.Hint = "Download at least one upscaling model into this directory."
		return item
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) == ".bin" {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Models directory is valid: %s", modelsDir)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelsDir)
	item.Hint = "Place a .bin/.param model pair in this directory, e.g. realesrgan-x4plus."
	return item
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a directory path in settings."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", dir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
