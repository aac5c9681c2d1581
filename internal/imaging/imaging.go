// Package imaging normalizes source images into clean, consistently
// tagged JPEGs: orientation applied, colorspace converted to sRGB, all
// source metadata stripped, then a fixed set of descriptive tags written
// into the fresh encoding.
package imaging

import (
	"fmt"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

// Descriptive tag values attached to every produced JPEG. The image
// description is always the original filename and is set per file.
const (
	DefaultArtist    = "img-upscale"
	DefaultCopyright = "Processed by img-upscale"
)

// Tags are the descriptive EXIF fields written into an output JPEG.
type Tags struct {
	Artist      string
	Copyright   string
	Description string
}

// SourceInfo describes a source image before normalization. It is logged
// for diagnostics only and never influences processing decisions.
type SourceInfo struct {
	Format      string
	Width       int
	Height      int
	ResX        float64
	ResY        float64
	Orientation int
	HasICC      bool
	HasEXIF     bool
}

// String formats source metadata for diagnostic logs.
func (i SourceInfo) String() string {
	return fmt.Sprintf("format=%s size=%dx%d density=%.0fx%.0f orientation=%d icc=%t exif=%t",
		i.Format, i.Width, i.Height, i.ResX, i.ResY, i.Orientation, i.HasICC, i.HasEXIF)
}

var startupOnce sync.Once

// Startup initializes the libvips runtime. Safe to call more than once.
func Startup() {
	startupOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(nil)
	})
}
