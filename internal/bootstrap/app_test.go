package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Akhlaquea01/img-upscale/internal/diagnostics"
	"github.com/Akhlaquea01/img-upscale/internal/domain"
	"github.com/Akhlaquea01/img-upscale/internal/jobs"
	"github.com/Akhlaquea01/img-upscale/internal/process"
)

type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *fakeStore) Save(cfg domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = cfg
	s.saves++
	return nil
}

type fakePipeline struct {
	mu       sync.Mutex
	requests []process.Request
	failFor  map[string]error
}

func (f *fakePipeline) Run(ctx context.Context, req process.Request) (process.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if req.OnStage != nil {
		req.OnStage(process.StageOptimize)
	}
	if err := f.failFor[req.FileName]; err != nil {
		return process.Result{}, err
	}

	stem := strings.TrimSuffix(req.FileName, filepath.Ext(req.FileName))
	return process.Result{OutputName: stem + ".jpg"}, nil
}

func (f *fakePipeline) requestFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := make([]string, 0, len(f.requests))
	for _, req := range f.requests {
		files = append(files, req.FileName)
	}
	return files
}

func newTestApp(t *testing.T) (*App, *fakePipeline, *fakeStore) {
	t.Helper()
	root := t.TempDir()

	settings := domain.Settings{
		UpscaylBin: filepath.Join(root, "Upscayl", "resources", "bin", "upscayl-bin"),
		InputDir:   filepath.Join(root, "input"),
		OutputDir:  filepath.Join(root, "output"),
		TempDir:    filepath.Join(root, "temp"),
		UploadDir:  filepath.Join(root, "uploads"),
	}
	if err := os.MkdirAll(settings.InputDir, 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}

	store := &fakeStore{settings: settings}
	pipeline := &fakePipeline{failFor: map[string]error{}}
	app := &App{
		Settings: settings,
		Store:    store,
		Pipeline: pipeline,
		Tracker:  jobs.NewTracker(),
		checker:  diagnostics.NewChecker(),
		events:   jobs.NewEventBus(100),
	}
	return app, pipeline, store
}

func writeInputFile(t *testing.T, app *App, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(app.Settings.InputDir, name), []byte("img"), 0o644); err != nil {
		t.Fatalf("write input file: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func eventsOfType(events []jobs.Event, eventType jobs.EventType) []jobs.Event {
	var out []jobs.Event
	for _, event := range events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func TestProcessImagesSingleFile(t *testing.T) {
	app, _, _ := newTestApp(t)
	writeInputFile(t, app, "photo.png")

	ack, err := app.ProcessImages(domain.BatchRequest{Filename: "photo.png"})
	if err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}
	if ack.Status != "started" || ack.Count != 1 {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	waitFor(t, func() bool {
		return len(eventsOfType(app.JobEvents(0), jobs.EventTypeComplete)) == 1
	})

	events := app.JobEvents(0)
	if got := len(eventsOfType(events, jobs.EventTypeStart)); got != 1 {
		t.Fatalf("start events = %d, want 1", got)
	}
	steps := eventsOfType(events, jobs.EventTypeStep)
	if len(steps) != 1 || steps[0].Message != "Optimizing & Tagging..." {
		t.Fatalf("unexpected step events: %+v", steps)
	}
	completes := eventsOfType(events, jobs.EventTypeComplete)
	if completes[0].File != "photo.png" || completes[0].Output != "/output/photo.jpg" {
		t.Fatalf("unexpected complete event: %+v", completes[0])
	}
	if got := len(eventsOfType(events, jobs.EventTypeError)); got != 0 {
		t.Fatalf("error events = %d, want 0", got)
	}
}

func TestProcessImagesAllIsSequentialAndOrdered(t *testing.T) {
	app, pipeline, _ := newTestApp(t)
	writeInputFile(t, app, "b.png")
	writeInputFile(t, app, "a.png")
	writeInputFile(t, app, "notes.txt")

	ack, err := app.ProcessImages(domain.BatchRequest{Filename: process.BatchAll})
	if err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}
	if ack.Count != 2 {
		t.Fatalf("ack count = %d, want 2", ack.Count)
	}

	waitFor(t, func() bool {
		return len(eventsOfType(app.JobEvents(0), jobs.EventTypeComplete)) == 2
	})

	if got := pipeline.requestFiles(); len(got) != 2 || got[0] != "a.png" || got[1] != "b.png" {
		t.Fatalf("pipeline saw %v, want [a.png b.png]", got)
	}

	// The second file must not start before the first finished.
	var lifecycle []string
	for _, event := range app.JobEvents(0) {
		if event.Type == jobs.EventTypeStart || event.Type == jobs.EventTypeComplete {
			lifecycle = append(lifecycle, string(event.Type)+":"+event.File)
		}
	}
	want := []string{"start:a.png", "complete:a.png", "start:b.png", "complete:b.png"}
	if len(lifecycle) != len(want) {
		t.Fatalf("lifecycle = %v, want %v", lifecycle, want)
	}
	for i := range want {
		if lifecycle[i] != want[i] {
			t.Fatalf("lifecycle = %v, want %v", lifecycle, want)
		}
	}
}

func TestProcessImagesEmptyDirectory(t *testing.T) {
	app, _, _ := newTestApp(t)

	ack, err := app.ProcessImages(domain.BatchRequest{Filename: process.BatchAll})
	if err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}
	if ack.Status != "started" || ack.Count != 0 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if events := app.JobEvents(0); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
	if app.Tracker.Current().Active {
		t.Fatal("empty batch should not be active")
	}
}

func TestProcessImagesRequiresFilename(t *testing.T) {
	app, _, _ := newTestApp(t)
	if _, err := app.ProcessImages(domain.BatchRequest{}); err == nil {
		t.Fatal("expected error for blank filename")
	}
}

func TestProcessImagesFailureIsIsolated(t *testing.T) {
	app, pipeline, _ := newTestApp(t)
	writeInputFile(t, app, "a.png")
	writeInputFile(t, app, "b.png")
	pipeline.failFor["a.png"] = errors.New("upscaler exploded")

	if _, err := app.ProcessImages(domain.BatchRequest{Filename: process.BatchAll}); err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}

	waitFor(t, func() bool {
		events := app.JobEvents(0)
		return len(eventsOfType(events, jobs.EventTypeComplete)) == 1 &&
			len(eventsOfType(events, jobs.EventTypeError)) == 1
	})

	events := app.JobEvents(0)
	errs := eventsOfType(events, jobs.EventTypeError)
	if errs[0].File != "a.png" || !strings.Contains(errs[0].Message, "upscaler exploded") {
		t.Fatalf("unexpected error event: %+v", errs[0])
	}
	completes := eventsOfType(events, jobs.EventTypeComplete)
	if completes[0].File != "b.png" {
		t.Fatalf("unexpected complete event: %+v", completes[0])
	}

	waitFor(t, func() bool { return !app.Tracker.Current().Active })
	state := app.Tracker.Current()
	if state.Completed != 1 || state.Failed != 1 {
		t.Fatalf("unexpected batch state: %+v", state)
	}
}

func TestProcessImagesSnapshotsSettingsPerDispatch(t *testing.T) {
	app, pipeline, _ := newTestApp(t)
	writeInputFile(t, app, "a.png")

	if _, err := app.ProcessImages(domain.BatchRequest{
		Filename: "a.png",
		Settings: domain.ProcessingSettings{Upscale: true, Model: "remacri"},
	}); err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}

	waitFor(t, func() bool { return len(pipeline.requestFiles()) == 1 })

	pipeline.mu.Lock()
	req := pipeline.requests[0]
	pipeline.mu.Unlock()
	if !req.Settings.Upscale || req.Settings.Model != "remacri" {
		t.Fatalf("processing settings not forwarded: %+v", req.Settings)
	}
	if req.Workspace.InputDir != app.Settings.InputDir {
		t.Fatalf("workspace input = %q, want %q", req.Workspace.InputDir, app.Settings.InputDir)
	}
	wantModels := filepath.Join(filepath.Dir(filepath.Dir(app.Settings.UpscaylBin)), "models")
	if req.Upscayl.ModelsDir != wantModels {
		t.Fatalf("models dir = %q, want %q", req.Upscayl.ModelsDir, wantModels)
	}
}

func TestSetUpscaylBinDerivesModelsDir(t *testing.T) {
	app, _, store := newTestApp(t)

	status, err := app.SetUpscaylBin("/opt/Upscayl/resources/bin/upscayl-bin")
	if err != nil {
		t.Fatalf("SetUpscaylBin: %v", err)
	}
	if status.ModelsDir != filepath.Join("/opt/Upscayl/resources", "models") {
		t.Fatalf("models dir = %q", status.ModelsDir)
	}
	if status.UpscaylAvailable {
		t.Fatal("binary should not be reported available")
	}
	if store.settings.UpscaylBin != "/opt/Upscayl/resources/bin/upscayl-bin" {
		t.Fatalf("store not updated: %q", store.settings.UpscaylBin)
	}

	if _, err := app.SetUpscaylBin("   "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestSaveSettingsNormalizes(t *testing.T) {
	app, _, _ := newTestApp(t)

	saved, err := app.SaveSettings(domain.Settings{
		UpscaylBin: "  /opt/Upscayl/resources/bin/upscayl-bin  ",
	})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if saved.UpscaylBin != "/opt/Upscayl/resources/bin/upscayl-bin" {
		t.Fatalf("bin not trimmed: %q", saved.UpscaylBin)
	}
	if saved.InputDir == "" || saved.OutputDir == "" || saved.TempDir == "" || saved.UploadDir == "" {
		t.Fatalf("blank directories not defaulted: %+v", saved)
	}
}

func TestImportImagesStagesThroughUploadDir(t *testing.T) {
	app, _, _ := newTestApp(t)
	srcDir := t.TempDir()

	photo := filepath.Join(srcDir, "photo.jpeg")
	if err := os.WriteFile(photo, []byte("img"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	notes := filepath.Join(srcDir, "notes.txt")
	if err := os.WriteFile(notes, []byte("text"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	imported, err := app.ImportImages([]string{photo, notes})
	if err != nil {
		t.Fatalf("ImportImages: %v", err)
	}
	if imported != 1 {
		t.Fatalf("imported = %d, want 1", imported)
	}
	if _, err := os.Stat(filepath.Join(app.Settings.InputDir, "photo.jpeg")); err != nil {
		t.Fatalf("imported file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(app.Settings.UploadDir, "photo.jpeg")); !os.IsNotExist(err) {
		t.Fatal("staged copy should have been moved out of the upload dir")
	}
}

func TestListOutputImages(t *testing.T) {
	app, _, _ := newTestApp(t)

	images, err := app.ListOutputImages()
	if err != nil {
		t.Fatalf("ListOutputImages on missing dir: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("expected no images, got %+v", images)
	}

	if err := os.MkdirAll(app.Settings.OutputDir, 0o755); err != nil {
		t.Fatalf("mkdir output: %v", err)
	}
	for _, name := range []string{"b.jpg", "a.jpg", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(app.Settings.OutputDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write output file: %v", err)
		}
	}

	images, err = app.ListOutputImages()
	if err != nil {
		t.Fatalf("ListOutputImages: %v", err)
	}
	if len(images) != 2 || images[0].Name != "a.jpg" || images[1].URL != "/output/b.jpg" {
		t.Fatalf("unexpected listing: %+v", images)
	}
}

func TestJobEventsSince(t *testing.T) {
	app, _, _ := newTestApp(t)
	writeInputFile(t, app, "a.png")

	if _, err := app.ProcessImages(domain.BatchRequest{Filename: "a.png"}); err != nil {
		t.Fatalf("ProcessImages: %v", err)
	}
	waitFor(t, func() bool {
		return len(eventsOfType(app.JobEvents(0), jobs.EventTypeComplete)) == 1
	})

	all := app.JobEvents(0)
	tail := app.JobEvents(all[0].Seq)
	if len(tail) != len(all)-1 {
		t.Fatalf("Since returned %d events, want %d", len(tail), len(all)-1)
	}
}

func TestFixDiagnosticCreatesDirectories(t *testing.T) {
	app, _, _ := newTestApp(t)

	report, err := app.FixDiagnostic("output_dir")
	if err != nil {
		t.Fatalf("FixDiagnostic: %v", err)
	}
	if _, err := os.Stat(app.Settings.OutputDir); err != nil {
		t.Fatalf("output dir not created: %v", err)
	}
	if len(report.Items) == 0 {
		t.Fatal("expected refreshed report items")
	}

	if _, err := app.FixDiagnostic("upscayl_bin"); err == nil {
		t.Fatal("expected manual-install error for upscayl_bin")
	}
	if _, err := app.FixDiagnostic("bogus"); err == nil {
		t.Fatal("expected error for unknown diagnostic")
	}
}
