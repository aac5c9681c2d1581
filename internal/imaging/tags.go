package imaging

import (
	"bytes"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

// writeDescriptiveTags attaches the IFD0 Artist, Copyright, and
// ImageDescription tags to an already-encoded JPEG. The input is expected
// to carry no EXIF of its own (it was just encoded from a stripped
// buffer), but an existing block is extended rather than replaced.
func writeDescriptiveTags(jpegData []byte, tags Tags) ([]byte, error) {
	jmp := jpegstructure.NewJpegMediaParser()
	media, err := jmp.ParseBytes(jpegData)
	if err != nil {
		return nil, fmt.Errorf("parse jpeg: %w", err)
	}
	segments := media.(*jpegstructure.SegmentList)

	rootIb, err := segments.ConstructExifBuilder()
	if err != nil {
		rootIb, err = newEmptyExifBuilder()
		if err != nil {
			return nil, fmt.Errorf("create exif builder: %w", err)
		}
	}

	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return nil, fmt.Errorf("resolve IFD0: %w", err)
	}

	fields := []struct {
		name  string
		value string
	}{
		{"Artist", tags.Artist},
		{"Copyright", tags.Copyright},
		{"ImageDescription", tags.Description},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := ifd0.SetStandardWithName(field.name, field.value); err != nil {
			return nil, fmt.Errorf("set %s: %w", field.name, err)
		}
	}

	if err := segments.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("attach exif segment: %w", err)
	}

	out := new(bytes.Buffer)
	if err := segments.Write(out); err != nil {
		return nil, fmt.Errorf("serialize jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// ReadDescriptiveTags extracts the descriptive IFD0 tags from JPEG bytes.
// Returns exif.ErrNoExif (wrapped) when the image carries no EXIF block.
func ReadDescriptiveTags(jpegData []byte) (Tags, error) {
	rawExif, err := exif.SearchAndExtractExif(jpegData)
	if err != nil {
		return Tags{}, fmt.Errorf("extract exif: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return Tags{}, fmt.Errorf("decode exif: %w", err)
	}

	var tags Tags
	for _, entry := range entries {
		switch entry.TagName {
		case "Artist":
			tags.Artist = entry.Formatted
		case "Copyright":
			tags.Copyright = entry.Formatted
		case "ImageDescription":
			tags.Description = entry.Formatted
		}
	}
	return tags, nil
}

// hasEXIFData reports whether the file at path carries an EXIF block.
func hasEXIFData(path string) bool {
	_, err := exif.SearchFileAndExtractExif(path)
	return err == nil
}

// newEmptyExifBuilder creates a root builder for images without EXIF.
func newEmptyExifBuilder() (*exif.IfdBuilder, error) {
	mapping, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, err
	}
	return exif.NewIfdBuilder(mapping, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}
