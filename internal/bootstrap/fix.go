package bootstrap

import (
	"fmt"
	"os"

	"github.com/Akhlaquea01/img-upscale/internal/config"
	"github.com/Akhlaquea01/img-upscale/internal/domain"
)

// FixDiagnostic attempts an automated remediation for a failing
// diagnostic item and returns the refreshed report. The upscayl binary
// itself cannot be installed from here; directory items are created and
// a missing models directory is repaired by fetching the default model.
func (a *App) FixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	switch itemID {
	case "input_dir":
		err = os.MkdirAll(settings.InputDir, 0o755)
	case "output_dir":
		err = os.MkdirAll(settings.OutputDir, 0o755)
	case "temp_dir":
		err = os.MkdirAll(settings.TempDir, 0o755)
	case "upload_dir":
		err = os.MkdirAll(settings.UploadDir, 0o755)
	case "models_dir":
		if config.ModelsDirFor(settings.UpscaylBin) == "" {
			return domain.DiagnosticReport{}, fmt.Errorf("models directory is not configured; set the upscayl path first")
		}
		_, err = a.DownloadUpscaleModel("realesrgan-x4plus")
	case "upscayl_bin":
		return domain.DiagnosticReport{}, fmt.Errorf("upscayl must be installed manually; download it from https://upscayl.org and point the settings at resources/bin/upscayl-bin")
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unknown diagnostic %q", itemID)
	}
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("fix %s: %w", itemID, err)
	}

	return a.refreshDiagnosticsFromSettings(settings), nil
}
