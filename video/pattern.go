package video

import (
	"errors"
	"fmt"
	"github.com/fzft/go-wcam/log"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Formats and discrete frame sizes offered by PatternDevice, indexed like the
// cam_fmt_nr and cam_frm_nr settings.
var (
	PatternFormats = []Format{FormatMJPEG, FormatYUYV}
	PatternSizes   = []Size{{640, 480}, {320, 240}, {160, 120}, {1280, 720}}
)

const (
	CIDBrightness       = 0x00980900
	CIDContrast         = 0x00980901
	CIDSaturation       = 0x00980902
	CIDHue              = 0x00980903
	CIDAutoWhiteBalance = 0x0098090c
)

func defaultControls() []Control {
	return []Control{
		{ID: CIDBrightness, Type: ControlInteger, Value: 128, Default: 128, Min: 0, Max: 255, Name: "Brightness"},
		{ID: CIDContrast, Type: ControlInteger, Value: 128, Default: 128, Min: 0, Max: 255, Name: "Contrast"},
		{ID: CIDSaturation, Type: ControlInteger, Value: 128, Default: 128, Min: 0, Max: 255, Name: "Saturation"},
		{ID: CIDHue, Type: ControlInteger, Value: 0, Default: 0, Min: -180, Max: 180, Name: "Hue"},
		{ID: CIDAutoWhiteBalance, Type: ControlBoolean, Value: 1, Default: 1, Min: 0, Max: 1, Name: "White Balance Temperature, Auto"},
	}
}

// 75% color bars, Y Cb Cr
var bars = [8][3]byte{
	{180, 128, 128},
	{162, 44, 142},
	{131, 156, 44},
	{112, 72, 58},
	{84, 184, 198},
	{65, 100, 212},
	{35, 212, 114},
	{16, 128, 128},
}

// PatternDevice is a synthetic camera producing moving color bars.
// It stands in for a capture device on hosts without one.
type PatternDevice struct {
	format   Format
	size     Size
	interval time.Duration
	enc      Encoder

	mu       sync.Mutex
	controls []Control
	seq      int
	stop     chan struct{}
	done     chan struct{}
}

func NewPatternDevice(fmtNr, frmNr, fps int) (*PatternDevice, error) {
	if fmtNr < 0 || fmtNr >= len(PatternFormats) {
		return nil, fmt.Errorf("%w: format index %d", ErrUnsupportedFormat, fmtNr)
	}
	if frmNr < 0 || frmNr >= len(PatternSizes) {
		return nil, fmt.Errorf("video: frame size index %d out of range", frmNr)
	}
	if fps <= 0 {
		fps = 15
	}
	return &PatternDevice{
		format:   PatternFormats[fmtNr],
		size:     PatternSizes[frmNr],
		interval: time.Second / time.Duration(fps),
		enc:      JPEGCodec{Quality: DefaultQuality},
		controls: defaultControls(),
	}, nil
}

func (d *PatternDevice) Format() Format {
	return d.format
}

func (d *PatternDevice) FrameSize() Size {
	return d.size
}

func (d *PatternDevice) Controls() []Control {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Control(nil), d.controls...)
}

func (d *PatternDevice) find(id uint32) *Control {
	for i := range d.controls {
		if d.controls[i].ID == id {
			return &d.controls[i]
		}
	}
	return nil
}

func (d *PatternDevice) Control(id uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.find(id)
	if c == nil {
		return 0, fmt.Errorf("%w: 0x%08x", ErrUnknownControl, id)
	}
	return c.Value, nil
}

func (d *PatternDevice) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.find(id)
	if c == nil {
		return fmt.Errorf("%w: 0x%08x", ErrUnknownControl, id)
	}
	if value < c.Min || value > c.Max {
		return fmt.Errorf("%w: %s=%d", ErrControlRange, c.Name, value)
	}
	c.Value = value
	return nil
}

func (d *PatternDevice) ResetControls() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.controls {
		d.controls[i].Value = d.controls[i].Default
	}
	return nil
}

func (d *PatternDevice) Start(fn func(frame []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return errors.New("video: capture already started")
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.capture(fn, d.stop, d.done)
	return nil
}

func (d *PatternDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (d *PatternDevice) capture(fn func([]byte), stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	yuyv := make([]byte, d.size.YUYVLen())
	var jpg []byte
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		d.render(yuyv)
		if !d.format.Compressed() {
			fn(yuyv)
			continue
		}

		var err error
		jpg, err = d.enc.EncodeYUYV(jpg[:0], yuyv, d.size)
		if err != nil {
			log.Logger.Error("pattern encode failed", zap.Error(err))
			continue
		}
		fn(jpg)
	}
}

// render draws the bars shifted by the frame sequence, luma offset by brightness.
func (d *PatternDevice) render(yuyv []byte) {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	bright := d.find(CIDBrightness).Value - 128
	d.mu.Unlock()

	w, h := int(d.size.Width), int(d.size.Height)
	barWidth := w / len(bars)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < h; y++ {
		row := yuyv[y*w*2 : (y+1)*w*2]
		for x := 0; x < w; x += 2 {
			bar := bars[((x+seq*2)/barWidth)%len(bars)]
			luma := clamp(int32(bar[0]) + bright)
			row[x*2], row[x*2+1], row[x*2+2], row[x*2+3] = luma, bar[1], luma, bar[2]
		}
	}
}

func clamp(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
