package intensity

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultFormats = []string{"PNG", "JPEG"}

func grayPNG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompute_UniformGray(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		value  uint8
		expect float64
	}{
		{name: "mid gray 50x50", w: 50, h: 50, value: 100, expect: 100.0},
		{name: "black 10x10", w: 10, h: 10, value: 0, expect: 0.0},
		{name: "white 10x10", w: 10, h: 10, value: 255, expect: 255.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(grayPNG(t, tt.w, tt.h, tt.value), defaultFormats)
			require.NoError(t, err)
			assert.Equal(t, tt.expect, res.AverageIntensity)
			assert.Equal(t, tt.w, res.Width)
			assert.Equal(t, tt.h, res.Height)
			assert.Equal(t, tt.w*tt.h, res.PixelCount)
			assert.Equal(t, "L", res.OriginalMode)
		})
	}
}

func TestCompute_RGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	res, err := Compute(buf.Bytes(), defaultFormats)
	require.NoError(t, err)
	assert.Equal(t, 18.0, res.AverageIntensity)
	assert.Equal(t, "RGB", res.OriginalMode)
	assert.Equal(t, 12, res.PixelCount)
}

func TestCompute_HalfAndHalf(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.Pix[0] = 0
	img.Pix[1] = 255
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	res, err := Compute(buf.Bytes(), defaultFormats)
	require.NoError(t, err)
	assert.Equal(t, 127.5, res.AverageIntensity)
}

func TestCompute_JPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 100
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	res, err := Compute(buf.Bytes(), defaultFormats)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, res.AverageIntensity, 1.0)
	assert.Equal(t, 256, res.PixelCount)
}

func TestCompute_UnsupportedFormat(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))

	_, err := Compute(buf.Bytes(), []string{"png", "JPEG"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "Image must be in one of the following formats: PNG, JPEG. Received: GIF")

	res, err := Compute(buf.Bytes(), []string{"GIF"})
	require.NoError(t, err)
	assert.Equal(t, "P", res.OriginalMode)
}

func TestCompute_Undecodable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "truncated jfif header", data: []byte("\xFF\xD8\xFF\xE0\x00\x10JFIF")},
		{name: "text", data: []byte("definitely not an image")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.data, defaultFormats)
			assert.ErrorIs(t, err, ErrUndecodable)
		})
	}
}

// pngHeaderOnly builds a PNG that declares a w x h 8-bit gray image but carries no pixel data.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter and interlace stay 0
	chunk("IHDR", ihdr)
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestCompute_PixelLimit(t *testing.T) {
	t.Run("oversized header rejected before decode", func(t *testing.T) {
		data := pngHeaderOnly(16000, 16000)
		require.Less(t, len(data), 100)

		_, err := Compute(data, defaultFormats)
		require.ErrorIs(t, err, ErrUndecodable)
		assert.Equal(t, "Error processing image: dimensions 16000x16000 exceed the limit of 50000000 pixels", err.Error())
	})

	t.Run("configured limit", func(t *testing.T) {
		data := grayPNG(t, 10, 10, 7)

		_, err := ComputeLimited(data, defaultFormats, 99)
		require.ErrorIs(t, err, ErrUndecodable)
		assert.Contains(t, err.Error(), "10x10 exceed the limit of 99 pixels")

		res, err := WithPixelLimit(100)(data, defaultFormats)
		require.NoError(t, err)
		assert.Equal(t, 100, res.PixelCount)
	})

	t.Run("non-positive limit disables the check", func(t *testing.T) {
		res, err := ComputeLimited(grayPNG(t, 4, 4, 7), defaultFormats, 0)
		require.NoError(t, err)
		assert.Equal(t, 16, res.PixelCount)
	})

	t.Run("format checked before size", func(t *testing.T) {
		_, err := Compute(pngHeaderOnly(16000, 16000), []string{"JPEG"})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestCompute_Deterministic(t *testing.T) {
	data := grayPNG(t, 8, 8, 42)
	a, err := Compute(data, defaultFormats)
	require.NoError(t, err)
	b, err := Compute(data, defaultFormats)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLuma(t *testing.T) {
	assert.Equal(t, uint8(255), Luma(color.White))
	assert.Equal(t, uint8(0), Luma(color.Black))
	assert.Equal(t, uint8(100), Luma(color.Gray{Y: 100}))
	// alpha is ignored
	assert.Equal(t, uint8(255), Luma(color.NRGBA{R: 255, G: 255, B: 255, A: 10}))
}
