package util

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBytes(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(1, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 4})

	data, err := EncodePNG(src)
	require.NoError(t, err)

	got, err := DecodeBytes(data)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, ToNRGBA(got).Pix)

	_, err = DecodeBytes([]byte("definitely not an image"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}

func TestDecodeImage_JPEG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 5, 7)), nil))

	got, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5, 7), got.Bounds())
}

func TestDecodeImageLimit(t *testing.T) {
	t.Parallel()

	data, err := EncodePNG(image.NewGray(image.Rect(0, 0, 4, 3)))
	require.NoError(t, err)

	t.Run("在限制内", func(t *testing.T) {
		img, err := DecodeImageLimit(bytes.NewReader(data), 12)
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
	})

	t.Run("超过限制", func(t *testing.T) {
		_, err := DecodeImageLimit(bytes.NewReader(data), 11)
		assert.ErrorIs(t, err, ErrTooManyPixels)
	})

	t.Run("不限制", func(t *testing.T) {
		_, err := DecodeImageLimit(bytes.NewReader(data), 0)
		assert.NoError(t, err)
	})

	// 只有文件头的 40000x40000 PNG，不应尝试分配像素
	t.Run("超大文件头", func(t *testing.T) {
		_, err := DecodeImage(bytes.NewReader(pngHeader(40000, 40000)))
		assert.ErrorIs(t, err, ErrTooManyPixels)
	})
}

func TestToNRGBA(t *testing.T) {
	t.Parallel()

	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(2, 3, color.NRGBA{R: 9, G: 8, B: 7, A: 6})

	sub := src.SubImage(image.Rect(1, 2, 4, 4)).(*image.NRGBA)
	got := ToNRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 3, 2), got.Bounds())
	assert.Equal(t, color.NRGBA{R: 9, G: 8, B: 7, A: 6}, got.NRGBAAt(1, 1))

	// 返回的是副本
	got.Pix[0] = 42
	assert.NotEqual(t, uint8(42), src.Pix[src.PixOffset(1, 2)])

	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 77})
	assert.Equal(t, color.NRGBA{R: 77, G: 77, B: 77, A: 255}, ToNRGBA(gray).NRGBAAt(0, 0))
}

// pngHeader 只包含签名和 IHDR 块的 PNG，足够让 DecodeConfig 读出宽高
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
