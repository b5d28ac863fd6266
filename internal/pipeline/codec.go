package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/dunamismax/webopt/internal/domain"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Decode parses a JPEG or PNG buffer and reports its container format.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}

	format = normalizeFormat(format)
	if format == "" {
		return nil, "", fmt.Errorf("%w: unsupported container", domain.ErrDecode)
	}
	return img, format, nil
}

// Encode writes img in the given container. Quality applies to JPEG only; PNG
// output is lossless at best compression.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch normalizeFormat(format) {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", domain.ErrEncode, err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: png: %v", domain.ErrEncode, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", domain.ErrEncode, format)
	}

	return buf.Bytes(), nil
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	default:
		return ""
	}
}

func contentTypeForFormat(format string) string {
	switch normalizeFormat(format) {
	case FormatJPEG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}
