//go:build linux
// +build linux

package video

import (
	"encoding/binary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func fakeFramebuffer(t *testing.T, size int) string {
	path := filepath.Join(t.TempDir(), "fb0")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func solid(size Size, y, cb, cr byte) []byte {
	frame := make([]byte, size.YUYVLen())
	for i := 0; i < len(frame); i += 4 {
		frame[i], frame[i+1], frame[i+2], frame[i+3] = y, cb, y, cr
	}
	return frame
}

func TestFramebuffer16(t *testing.T) {
	path := fakeFramebuffer(t, 4*2*2)
	d, err := OpenFramebuffer(path, 16, 4, 2)
	require.NoError(t, err)

	src := Size{Width: 8, Height: 4}
	require.NoError(t, d.ShowYUYV(solid(src, 200, 90, 160), src))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	r, g, b := color.YCbCrToRGB(200, 90, 160)
	want := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)

	mem, err := os.ReadFile(path)
	require.NoError(t, err)
	for i := 0; i < len(mem); i += 2 {
		assert.Equal(t, want, binary.LittleEndian.Uint16(mem[i:]))
	}

	assert.ErrorIs(t, d.ShowYUYV(solid(src, 0, 0, 0), src), ErrDisplayClosed)
}

func TestFramebuffer24(t *testing.T) {
	path := fakeFramebuffer(t, 2*2*3)
	// unsupported depth falls back to 16
	d16, err := OpenFramebuffer(path, 32, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 16, d16.bpp)
	d16.Close()

	d, err := OpenFramebuffer(path, 24, 2, 2)
	require.NoError(t, err)
	defer d.Close()

	src := Size{Width: 2, Height: 2}
	require.NoError(t, d.ShowYUYV(solid(src, 128, 128, 128), src))
	r, g, b := color.YCbCrToRGB(128, 128, 128)
	assert.Equal(t, []byte{r, g, b}, d.mem[0:3])

	assert.NotNil(t, d.ShowYUYV([]byte{1, 2}, src))
}

func TestOpenFramebufferErrors(t *testing.T) {
	_, err := OpenFramebuffer(filepath.Join(t.TempDir(), "missing"), 16, 4, 4)
	assert.NotNil(t, err)
	_, err = OpenFramebuffer(fakeFramebuffer(t, 8), 16, 0, 4)
	assert.NotNil(t, err)
}

func TestFramebufferPaddedRows(t *testing.T) {
	// 3 pixels of RGB565 per row, padded to 8 bytes
	const width, height, stride = 3, 2, 8
	path := fakeFramebuffer(t, stride*height)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	d, err := mapFramebuffer(f, 16, width, height, stride)
	require.NoError(t, err)

	src := Size{Width: 6, Height: 2}
	require.NoError(t, d.ShowYUYV(solid(src, 200, 90, 160), src))
	require.NoError(t, d.Close())

	r, g, b := color.YCbCrToRGB(200, 90, 160)
	want := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)

	mem, err := os.ReadFile(path)
	require.NoError(t, err)
	for y := 0; y < height; y++ {
		row := mem[y*stride : (y+1)*stride]
		for x := 0; x < width; x++ {
			assert.Equal(t, want, binary.LittleEndian.Uint16(row[x*2:]), "pixel %d,%d", x, y)
		}
		assert.Equal(t, []byte{0, 0}, row[width*2:], "padding of row %d", y)
	}
}

func TestLineLengthOfPlainFile(t *testing.T) {
	f, err := os.Open(fakeFramebuffer(t, 16))
	require.NoError(t, err)
	defer f.Close()

	_, err = lineLength(f.Fd())
	assert.Error(t, err)

	// a plain file maps with packed rows
	d, err := OpenFramebuffer(f.Name(), 16, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, d.stride)
	d.Close()
}
