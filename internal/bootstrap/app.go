package bootstrap

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/Akhlaquea01/img-upscale/internal/config"
	"github.com/Akhlaquea01/img-upscale/internal/diagnostics"
	"github.com/Akhlaquea01/img-upscale/internal/domain"
	"github.com/Akhlaquea01/img-upscale/internal/jobs"
	"github.com/Akhlaquea01/img-upscale/internal/process"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// App wires configuration, the processing pipeline, and UI runtime
// callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Pipeline    pipelineRunner
	Diagnostics domain.DiagnosticReport
	Tracker     *jobs.Tracker
	assets      fs.FS
	checker     *diagnostics.Checker

	mu         sync.Mutex
	events     *jobs.EventBus
	runtimeCtx context.Context
}

// pipelineRunner isolates the image pipeline behind an interface.
type pipelineRunner interface {
	Run(ctx context.Context, req process.Request) (process.Result, error)
}

// New builds the application with persisted settings and an environment
// diagnostics pass.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".img-upscale", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run(settings)

	return &App{
		Settings:    settings,
		Store:       store,
		Pipeline:    process.NewPipeline(),
		Diagnostics: report,
		Tracker:     jobs.NewTracker(),
		assets:      assets,
		checker:     checker,
		events:      jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails application and binds backend methods. The asset
// server fallback handler provides the stable /input/ and /output/ URL
// surface for the gallery and for completed-event links.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{
		Handler: a.staticFileHandler(),
	}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	}

	return wails.Run(&options.App{
		Title:       "img-upscale",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop: true,
		},
		OnStartup: a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the runtime context for push events and registers the
// drag-drop intake.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	wailsruntime.OnFileDrop(ctx, func(x, y int, paths []string) {
		if len(paths) == 0 {
			return
		}
		if _, err := a.ImportImages(paths); err != nil {
			log.Printf("bootstrap: import dropped files: %v", err)
		}
	})
}

// staticFileHandler serves the input gallery and finished JPEGs. Paths
// outside the two workspace prefixes fall through to the dev frontend
// directory when no assets are embedded, otherwise 404.
func (a *App) staticFileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		settings := a.currentSettings()
		switch {
		case strings.HasPrefix(r.URL.Path, "/output/"):
			http.StripPrefix("/output/", http.FileServer(http.Dir(settings.OutputDir))).ServeHTTP(w, r)
		case strings.HasPrefix(r.URL.Path, "/input/"):
			http.StripPrefix("/input/", http.FileServer(http.Dir(settings.InputDir))).ServeHTTP(w, r)
		case a.assets == nil:
			http.FileServer(http.Dir("./frontend")).ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and reruns environment checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes
// diagnostics. The new value replaces the old one atomically; files
// already dispatched keep the snapshot they were dispatched with.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(normalized)
	return normalized, nil
}

// GetUpscaylStatus returns the upscaler configuration read surface.
func (a *App) GetUpscaylStatus() (domain.UpscaylStatus, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.UpscaylStatus{}, fmt.Errorf("load settings: %w", err)
	}
	return upscaylStatus(settings), nil
}

// SetUpscaylBin points the configuration at a new Upscayl executable and
// re-derives the models directory from it by convention.
func (a *App) SetUpscaylBin(path string) (domain.UpscaylStatus, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return domain.UpscaylStatus{}, fmt.Errorf("upscayl path is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.UpscaylStatus{}, fmt.Errorf("load settings: %w", err)
	}

	settings.UpscaylBin = trimmed
	if err := a.Store.Save(settings); err != nil {
		return domain.UpscaylStatus{}, fmt.Errorf("save settings: %w", err)
	}

	a.refreshDiagnosticsFromSettings(settings)
	return upscaylStatus(settings), nil
}

// ProcessImages resolves a batch request and dispatches it. The ack is
// returned before any file has begun processing; progress is observable
// only through the event stream. Overlapping batch triggers are not
// serialized.
func (a *App) ProcessImages(req domain.BatchRequest) (domain.BatchAck, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.BatchAck{}, fmt.Errorf("load settings: %w", err)
	}
	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	files, err := process.ResolveBatch(settings.InputDir, req.Filename)
	if err != nil {
		return domain.BatchAck{}, err
	}

	batchID := uuid.NewString()
	a.Tracker.BatchStarted(batchID, len(files))
	if len(files) > 0 {
		go a.runBatch(context.Background(), batchID, files, req.Settings)
	}

	return domain.BatchAck{Status: "started", Count: len(files)}, nil
}

// CurrentBatch returns a snapshot of the most recent batch.
func (a *App) CurrentBatch() jobs.BatchState {
	return a.Tracker.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// ListInputImages returns the pending images in the input directory.
func (a *App) ListInputImages() ([]string, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return process.ResolveBatch(settings.InputDir, process.BatchAll)
}

// ListOutputImages returns the finished JPEGs with their serving URLs.
func (a *App) ListOutputImages() ([]domain.OutputImage, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	entries, err := os.ReadDir(settings.OutputDir)
	if err != nil {
		if diagnostics.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list output directory: %w", err)
	}

	var images []domain.OutputImage
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".jpg" {
			continue
		}
		images = append(images, domain.OutputImage{
			Name: entry.Name(),
			URL:  "/output/" + entry.Name(),
		})
	}

	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

// ImportImages stages external files through the upload directory and
// moves them into the input directory, so partially copied files never
// surface as pending work. Non-image files are skipped silently.
func (a *App) ImportImages(paths []string) (int, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	if err := os.MkdirAll(settings.UploadDir, 0o755); err != nil {
		return 0, fmt.Errorf("create upload directory: %w", err)
	}
	if err := os.MkdirAll(settings.InputDir, 0o755); err != nil {
		return 0, fmt.Errorf("create input directory: %w", err)
	}

	imported := 0
	for _, src := range paths {
		name := filepath.Base(src)
		if !process.IsImageFile(name) {
			continue
		}

		staged := filepath.Join(settings.UploadDir, name)
		if err := copyFile(src, staged); err != nil {
			return imported, fmt.Errorf("stage %s: %w", name, err)
		}
		if err := os.Rename(staged, filepath.Join(settings.InputDir, name)); err != nil {
			return imported, fmt.Errorf("move %s into input: %w", name, err)
		}
		imported++
	}

	return imported, nil
}

// runBatch processes the resolved files strictly sequentially, awaiting
// each before starting the next. Per-file failures are isolated; the
// batch always advances.
func (a *App) runBatch(ctx context.Context, batchID string, files []string, procSettings domain.ProcessingSettings) {
	for _, fileName := range files {
		a.processOne(ctx, batchID, fileName, procSettings)
	}
	a.Tracker.BatchFinished(batchID)
}

// processOne runs the pipeline for one file and maps the outcome onto the
// progress event protocol: one start, zero or more steps, then exactly
// one complete or error.
func (a *App) processOne(ctx context.Context, batchID, fileName string, procSettings domain.ProcessingSettings) {
	a.Tracker.FileStarted(batchID, fileName)
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeStart,
		File:    fileName,
	})

	// Each dispatch reads a consistent settings snapshot; a config change
	// mid-batch only affects files not yet dispatched.
	settings := a.currentSettings()
	req := process.Request{
		FileName: fileName,
		Settings: procSettings,
		Workspace: process.Workspace{
			InputDir:  settings.InputDir,
			OutputDir: settings.OutputDir,
			TempDir:   settings.TempDir,
		},
		Upscayl: process.UpscaylConfig{
			BinPath:   settings.UpscaylBin,
			ModelsDir: config.ModelsDirFor(settings.UpscaylBin),
		},
		OnStage: func(stage string) {
			message, ok := stageMessage(stage)
			if !ok {
				return
			}
			a.publishEvent(jobs.Event{
				BatchID: batchID,
				Type:    jobs.EventTypeStep,
				File:    fileName,
				Message: message,
			})
		},
		OnNotice: func(message string) {
			a.publishEvent(jobs.Event{
				BatchID: batchID,
				Type:    jobs.EventTypeStep,
				File:    fileName,
				Message: message,
			})
		},
		OnLog: func(cmdLog process.CommandLog) {
			log.Printf("bootstrap: %s exit=%d", cmdLog.Command, cmdLog.ExitCode)
		},
	}

	result, err := a.Pipeline.Run(ctx, req)
	if err != nil {
		log.Printf("bootstrap: processing %s failed: %v", fileName, err)
		a.Tracker.FileFailed(batchID)
		a.publishEvent(jobs.Event{
			BatchID: batchID,
			Type:    jobs.EventTypeError,
			File:    fileName,
			Message: err.Error(),
		})
		return
	}

	a.Tracker.FileCompleted(batchID)
	a.publishEvent(jobs.Event{
		BatchID: batchID,
		Type:    jobs.EventTypeComplete,
		File:    fileName,
		Output:  "/output/" + result.OutputName,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "pipeline:event", published)
	}
}

// refreshDiagnosticsFromSettings swaps in new settings and reruns checks.
func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// currentSettings returns a consistent snapshot of the settings value.
func (a *App) currentSettings() domain.Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Settings
}

// stageMessage maps pipeline stage names onto step event messages.
func stageMessage(stage string) (string, bool) {
	switch stage {
	case process.StageUpscale:
		return "Upscaling...", true
	case process.StageOptimize:
		return "Optimizing & Tagging...", true
	default:
		return "", false
	}
}

// upscaylStatus builds the configuration read view.
func upscaylStatus(settings domain.Settings) domain.UpscaylStatus {
	_, err := os.Stat(settings.UpscaylBin)
	return domain.UpscaylStatus{
		UpscaylBin:       settings.UpscaylBin,
		UpscaylAvailable: err == nil,
		ModelsDir:        config.ModelsDirFor(settings.UpscaylBin),
	}
}

// normalizeSettings trims user inputs and restores defaults for blanks.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()
	settings.UpscaylBin = strings.TrimSpace(settings.UpscaylBin)
	settings.InputDir = strings.TrimSpace(settings.InputDir)
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.TempDir = strings.TrimSpace(settings.TempDir)
	settings.UploadDir = strings.TrimSpace(settings.UploadDir)

	if settings.UpscaylBin == "" {
		settings.UpscaylBin = defaults.UpscaylBin
	}
	if settings.InputDir == "" {
		settings.InputDir = defaults.InputDir
	}
	if settings.OutputDir == "" {
		settings.OutputDir = defaults.OutputDir
	}
	if settings.TempDir == "" {
		settings.TempDir = defaults.TempDir
	}
	if settings.UploadDir == "" {
		settings.UploadDir = defaults.UploadDir
	}
	return settings
}

// copyFile copies src to dst, truncating any existing file.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
