package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/Akhlaquea01/img-upscale/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
// The Upscayl path points at the stock desktop install location for the
// current platform; the workspace directories live under the user home.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	workspace := filepath.Join(homeDir, ".img-upscale")
	return domain.Settings{
		UpscaylBin: defaultUpscaylBin(),
		InputDir:   filepath.Join(workspace, "input"),
		OutputDir:  filepath.Join(workspace, "output"),
		TempDir:    filepath.Join(workspace, "temp"),
		UploadDir:  filepath.Join(workspace, "uploads"),
	}
}

// defaultUpscaylBin returns the stock Upscayl executable path per platform.
func defaultUpscaylBin() string {
	switch goruntime.GOOS {
	case "darwin":
		return "/Applications/Upscayl.app/Contents/Resources/bin/upscayl-bin"
	case "windows":
		return filepath.Join("C:\\", "Program Files", "Upscayl", "resources", "bin", "upscayl-bin.exe")
	default:
		return "/opt/Upscayl/resources/bin/upscayl-bin"
	}
}

// ModelsDirFor derives the models directory from the executable path by
// convention: .../resources/bin/<exe> -> .../resources/models.
func ModelsDirFor(upscaylBin string) string {
	bin := strings.TrimSpace(upscaylBin)
	if bin == "" {
		return ""
	}

	binDir := filepath.Dir(bin)
	return filepath.Join(filepath.Dir(binDir), "models")
}
