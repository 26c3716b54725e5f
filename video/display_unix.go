//go:build linux
// +build linux

package video

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/log"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"image/color"
	"os"
	"sync"
	"unsafe"
)

var ErrDisplayClosed = errors.New("video: display closed")

// FBDisplay scales frames onto a memory mapped framebuffer, RGB565 or RGB888.
type FBDisplay struct {
	mu     sync.Mutex
	f      *os.File
	mem    []byte
	bpp    int
	width  int
	height int
	stride int
}

const fbiogetFscreeninfo = 0x4602

// fbFixScreeninfo mirrors struct fb_fix_screeninfo from linux/fb.h.
type fbFixScreeninfo struct {
	ID           [16]byte
	SmemStart    uintptr
	SmemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	Xpanstep     uint16
	Ypanstep     uint16
	Ywrapstep    uint16
	LineLength   uint32
	MmioStart    uintptr
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

// lineLength asks the driver for the bytes per row, padding included.
func lineLength(fd uintptr) (int, error) {
	var fix fbFixScreeninfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, fbiogetFscreeninfo, uintptr(unsafe.Pointer(&fix)))
	if errno != 0 {
		return 0, os.NewSyscallError("ioctl FBIOGET_FSCREENINFO", errno)
	}
	return int(fix.LineLength), nil
}

func OpenFramebuffer(path string, bpp, width, height int) (*FBDisplay, error) {
	if bpp != 16 && bpp != 24 {
		log.Logger.Warn("only 16 and 24 bpp are supported, using 16", zap.Int("bpp", bpp))
		bpp = 16
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("video: bad framebuffer geometry %dx%d", width, height)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	packed := width * bpp / 8
	stride, err := lineLength(f.Fd())
	switch {
	case err != nil:
		// not a framebuffer device, rows are packed
		log.Logger.Debug("framebuffer line length unavailable", zap.String("path", path), zap.Error(err))
		stride = packed
	case stride < packed:
		f.Close()
		return nil, fmt.Errorf("video: framebuffer line length %d is shorter than %d pixels", stride, width)
	}
	return mapFramebuffer(f, bpp, width, height, stride)
}

func mapFramebuffer(f *os.File, bpp, width, height, stride int) (*FBDisplay, error) {
	mem, err := unix.Mmap(int(f.Fd()), 0, stride*height, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, os.NewSyscallError("mmap", err)
	}
	return &FBDisplay{f: f, mem: mem, bpp: bpp, width: width, height: height, stride: stride}, nil
}

// ShowYUYV draws the frame scaled to the whole screen, nearest neighbour.
func (d *FBDisplay) ShowYUYV(yuyv []byte, size Size) error {
	if err := checkYUYV(yuyv, size); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mem == nil {
		return ErrDisplayClosed
	}

	sw, sh := int(size.Width), int(size.Height)
	px := d.bpp / 8
	for y := 0; y < d.height; y++ {
		sy := y * sh / d.height
		line := d.mem[y*d.stride : y*d.stride+d.width*px]
		for x := 0; x < d.width; x++ {
			sx := x * sw / d.width
			base := (sy*sw + sx&^1) * 2
			r, g, b := color.YCbCrToRGB(yuyv[base+(sx&1)*2], yuyv[base+1], yuyv[base+3])
			if d.bpp == 16 {
				binary.LittleEndian.PutUint16(line[x*2:], uint16(r>>3)<<11|uint16(g>>2)<<5|uint16(b>>3))
			} else {
				line[x*3], line[x*3+1], line[x*3+2] = r, g, b
			}
		}
	}
	return nil
}

func (d *FBDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mem == nil {
		return nil
	}
	err := multierr.Combine(
		os.NewSyscallError("munmap", unix.Munmap(d.mem)),
		d.f.Close(),
	)
	d.mem = nil
	return err
}
