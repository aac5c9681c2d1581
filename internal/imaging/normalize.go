package imaging

import (
	"context"
	"fmt"
	"os"

	"github.com/davidbyttow/govips/v2/vips"
)

// jpegQuality and full-resolution chroma are fixed: outputs are archival
// quality regardless of the source encoding.
const jpegQuality = 95

// Encoder is the production normalizer backed by libvips. The runtime is
// initialized lazily on first use.
type Encoder struct{}

// NewEncoder creates an encoder.
func NewEncoder() Encoder {
	return Encoder{}
}

// NormalizeToJPEG reads the source image, applies the EXIF orientation,
// converts to sRGB, strips every piece of source metadata by re-encoding
// into a fresh buffer, writes the descriptive tags, and stores the result
// at dstPath as a quality-95 4:4:4 JPEG. The returned SourceInfo describes
// the source before normalization.
func (Encoder) NormalizeToJPEG(ctx context.Context, srcPath, dstPath string, tags Tags) (SourceInfo, error) {
	if err := ctx.Err(); err != nil {
		return SourceInfo{}, err
	}
	Startup()

	img, err := vips.NewImageFromFile(srcPath)
	if err != nil {
		return SourceInfo{}, fmt.Errorf("load image %s: %w", srcPath, err)
	}
	defer img.Close()

	info := describe(srcPath, img)

	if err := img.AutoRotate(); err != nil {
		return info, fmt.Errorf("apply orientation: %w", err)
	}
	if err := img.OptimizeICCProfile(); err != nil {
		return info, fmt.Errorf("convert icc profile: %w", err)
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return info, fmt.Errorf("convert to sRGB: %w", err)
	}

	params := vips.NewJpegExportParams()
	params.Quality = jpegQuality
	params.StripMetadata = true
	params.SubsampleMode = vips.VipsForeignSubsampleOff
	params.OptimizeCoding = true

	encoded, _, err := img.ExportJpeg(params)
	if err != nil {
		return info, fmt.Errorf("encode jpeg: %w", err)
	}

	tagged, err := writeDescriptiveTags(encoded, tags)
	if err != nil {
		return info, fmt.Errorf("write descriptive tags: %w", err)
	}

	if err := writeFileDurably(dstPath, tagged); err != nil {
		return info, fmt.Errorf("write output %s: %w", dstPath, err)
	}
	return info, nil
}

// describe collects source metadata for diagnostic logging.
func describe(srcPath string, img *vips.ImageRef) SourceInfo {
	return SourceInfo{
		Format:      vips.ImageTypes[img.Format()],
		Width:       img.Width(),
		Height:      img.Height(),
		ResX:        img.ResX(),
		ResY:        img.ResY(),
		Orientation: img.Orientation(),
		HasICC:      img.HasICCProfile(),
		HasEXIF:     hasEXIFData(srcPath),
	}
}

// writeFileDurably syncs file contents to disk before returning, so the
// caller may safely delete the source afterwards.
func writeFileDurably(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
