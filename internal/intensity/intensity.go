// Package intensity computes the mean grayscale intensity of an encoded image.
package intensity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"intensityapi/internal/model"
)

var (
	// ErrUnsupportedFormat is returned when the decoded format is not in the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrUndecodable is returned when the bytes are not a readable image.
	ErrUndecodable = errors.New("undecodable image")
)

// ImageError is a caller-input failure. Error returns the human-readable detail;
// errors.Is matches the Reason sentinel.
type ImageError struct {
	Reason error
	Detail string
}

func (e *ImageError) Error() string { return e.Detail }

func (e *ImageError) Unwrap() error { return e.Reason }

func undecodable(format string, args ...any) error {
	return &ImageError{Reason: ErrUndecodable, Detail: "Error processing image: " + fmt.Sprintf(format, args...)}
}

// DefaultMaxPixels bounds the declared image area when no explicit limit is configured.
const DefaultMaxPixels int64 = 50_000_000

// Compute measures data with the DefaultMaxPixels limit.
func Compute(data []byte, allowed []string) (*model.AnalysisResult, error) {
	return ComputeLimited(data, allowed, DefaultMaxPixels)
}

// WithPixelLimit returns a Compute variant bound to maxPixels.
func WithPixelLimit(maxPixels int64) func(data []byte, allowed []string) (*model.AnalysisResult, error) {
	return func(data []byte, allowed []string) (*model.AnalysisResult, error) {
		return ComputeLimited(data, allowed, maxPixels)
	}
}

// ComputeLimited decodes data, checks its format against allowed (case-insensitive), converts it
// to 8-bit luma and returns the mean intensity rounded to two decimals. Images whose header
// declares more than maxPixels pixels are rejected before any pixel data is decoded;
// maxPixels <= 0 disables the check.
func ComputeLimited(data []byte, allowed []string, maxPixels int64) (*model.AnalysisResult, error) {
	if len(data) == 0 {
		return nil, undecodable("empty payload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, undecodable("%v", err)
	}
	format = strings.ToUpper(format)
	if !formatAllowed(format, allowed) {
		return nil, &ImageError{
			Reason: ErrUnsupportedFormat,
			Detail: fmt.Sprintf("Image must be in one of the following formats: %s. Received: %s",
				strings.Join(upper(allowed), ", "), format),
		}
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, undecodable("image has no pixels")
	}
	if declared := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && declared > maxPixels {
		return nil, undecodable("dimensions %dx%d exceed the limit of %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, undecodable("%v", err)
	}

	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	pixels := width * height
	if pixels == 0 {
		return nil, undecodable("image has no pixels")
	}

	sum := lumaSum(img)
	mean := float64(sum) / float64(pixels)

	return &model.AnalysisResult{
		AverageIntensity: math.Round(mean*100) / 100,
		Width:            width,
		Height:           height,
		OriginalMode:     Mode(img),
		PixelCount:       pixels,
	}, nil
}

// Mode names the colour layout of img using the conventional single-channel/multi-channel labels.
func Mode(img image.Image) string {
	switch m := img.(type) {
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	case *image.YCbCr:
		return "RGB"
	case *image.RGBA, *image.RGBA64:
		return "RGB"
	case *image.NRGBA, *image.NRGBA64:
		return "RGBA"
	case *image.Alpha, *image.Alpha16:
		return "L"
	default:
		if m.ColorModel() == color.GrayModel {
			return "L"
		}
		return "RGB"
	}
}

// Luma converts a colour to 8-bit luma with the ITU-R 601-2 weights
// L = R*299/1000 + G*587/1000 + B*114/1000, ignoring alpha.
func Luma(c color.Color) uint8 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return lumaRGB(n.R, n.G, n.B)
}

func lumaRGB(r, g, b uint8) uint8 {
	// Fixed-point form of the 601-2 weights, rounded.
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

func lumaSum(img image.Image) uint64 {
	b := img.Bounds()
	var sum uint64

	switch m := img.(type) {
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):m.PixOffset(b.Max.X, y)]
			for _, v := range row {
				sum += uint64(v)
			}
		}
		return sum
	case *image.Gray16:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				sum += uint64(m.Gray16At(x, y).Y >> 8)
			}
		}
		return sum
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := m.PixOffset(b.Min.X, y)
			for x := b.Min.X; x < b.Max.X; x++ {
				sum += uint64(lumaRGB(m.Pix[off], m.Pix[off+1], m.Pix[off+2]))
				off += 4
			}
		}
		return sum
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += uint64(Luma(img.At(x, y)))
		}
	}
	return sum
}

func formatAllowed(format string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), format) {
			return true
		}
	}
	return false
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToUpper(strings.TrimSpace(s)))
	}
	return out
}
