package video

import (
	"errors"
	"github.com/fzft/go-wcam/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
)

type fakeDevice struct {
	format Format
	size   Size
	fn     func([]byte)
	stops  int
}

func (d *fakeDevice) Format() Format                     { return d.format }
func (d *fakeDevice) FrameSize() Size                    { return d.size }
func (d *fakeDevice) Controls() []Control                { return nil }
func (d *fakeDevice) Control(id uint32) (int32, error)   { return 0, ErrUnknownControl }
func (d *fakeDevice) SetControl(id uint32, v int32) error { return nil }
func (d *fakeDevice) ResetControls() error               { return nil }
func (d *fakeDevice) Start(fn func([]byte)) error        { d.fn = fn; return nil }
func (d *fakeDevice) Stop() error                        { d.stops++; return nil }

// inline runs jobs on the calling goroutine.
type inline struct{}

func (inline) Submit(job pool.Job) error { job(); return nil }

// held keeps jobs until run is called.
type held struct {
	jobs []pool.Job
	err  error
}

func (h *held) Submit(job pool.Job) error {
	if h.err != nil {
		return h.err
	}
	h.jobs = append(h.jobs, job)
	return nil
}

func (h *held) run() {
	jobs := h.jobs
	h.jobs = nil
	for _, j := range jobs {
		j()
	}
}

type recordDisplay struct {
	mu     sync.Mutex
	frames int
	size   Size
	closed bool
}

func (d *recordDisplay) ShowYUYV(yuyv []byte, size Size) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames++
	d.size = size
	return nil
}

func (d *recordDisplay) Close() error {
	d.closed = true
	return nil
}

func barsFrame(t *testing.T, size Size) []byte {
	d := &PatternDevice{size: size, controls: defaultControls()}
	yuyv := make([]byte, size.YUYVLen())
	d.render(yuyv)
	return yuyv
}

func TestCompressedCaptureFlow(t *testing.T) {
	size := Size{Width: 32, Height: 16}
	jpg, err := JPEGCodec{}.EncodeYUYV(nil, barsFrame(t, size), size)
	require.NoError(t, err)

	dev := &fakeDevice{format: FormatMJPEG, size: size}
	disp := &recordDisplay{}
	var published []int
	v, err := New(dev, inline{}, WithDisplay(disp), WithPublishHook(func(n int) { published = append(published, n) }))
	require.NoError(t, err)
	require.NoError(t, v.Start())

	frame, idx := v.AppendLatest(0, nil)
	assert.Empty(t, frame)
	assert.Equal(t, uint64(0), idx)

	dev.fn(jpg)
	assert.Equal(t, uint64(1), v.Index())
	assert.Equal(t, 1, disp.frames)
	assert.Equal(t, size, disp.size)
	assert.Equal(t, []int{len(jpg)}, published)

	frame, idx = v.AppendLatest(0, []byte{0xaa})
	assert.Equal(t, append([]byte{0xaa}, jpg...), frame)
	assert.Equal(t, uint64(1), idx)

	frame, idx = v.AppendLatest(idx, frame[:1])
	assert.Equal(t, []byte{0xaa}, frame)
	assert.Equal(t, uint64(1), idx)

	require.NoError(t, v.Close())
	assert.Equal(t, 1, dev.stops)
	assert.True(t, disp.closed)
}

func TestCompressedPreviewSkippedWhileBusy(t *testing.T) {
	size := Size{Width: 16, Height: 8}
	jpg, err := JPEGCodec{}.EncodeYUYV(nil, barsFrame(t, size), size)
	require.NoError(t, err)

	dev := &fakeDevice{format: FormatJPEG, size: size}
	disp := &recordDisplay{}
	jobs := &held{}
	v, err := New(dev, jobs, WithDisplay(disp))
	require.NoError(t, err)
	v.Start()

	dev.fn(jpg)
	dev.fn(jpg)
	// every frame is published, only one preview is queued
	assert.Equal(t, uint64(2), v.Index())
	assert.Len(t, jobs.jobs, 1)

	jobs.run()
	assert.Equal(t, 1, disp.frames)
	dev.fn(jpg)
	assert.Len(t, jobs.jobs, 1)
}

func TestYUYVCaptureFlow(t *testing.T) {
	size := Size{Width: 32, Height: 16}
	dev := &fakeDevice{format: FormatYUYV, size: size}
	disp := &recordDisplay{}
	v, err := New(dev, inline{}, WithDisplay(disp))
	require.NoError(t, err)
	v.Start()

	dev.fn(barsFrame(t, size))
	assert.Equal(t, 1, disp.frames)
	assert.Equal(t, uint64(1), v.Index())

	jpg, idx := v.AppendLatest(0, nil)
	assert.Equal(t, uint64(1), idx)
	_, got, err := JPEGCodec{}.DecodeJPEG(nil, jpg)
	require.NoError(t, err)
	assert.Equal(t, size, got)
	assert.Equal(t, FormatJPEG, v.TransferFormat())
	assert.Equal(t, size, v.FrameSize())
}

func TestYUYVDroppedWhileBusy(t *testing.T) {
	size := Size{Width: 16, Height: 8}
	dev := &fakeDevice{format: FormatYUYV, size: size}
	jobs := &held{}
	v, err := New(dev, jobs)
	require.NoError(t, err)
	v.Start()

	frame := barsFrame(t, size)
	dev.fn(frame)
	dev.fn(frame)
	assert.Len(t, jobs.jobs, 1)
	assert.Equal(t, uint64(1), v.Dropped())
	assert.Equal(t, uint64(0), v.Index())

	jobs.run()
	assert.Equal(t, uint64(1), v.Index())
	dev.fn(frame)
	assert.Len(t, jobs.jobs, 1)
}

func TestSubmitRejected(t *testing.T) {
	size := Size{Width: 16, Height: 8}
	dev := &fakeDevice{format: FormatYUYV, size: size}
	jobs := &held{err: errors.New("closed")}
	v, err := New(dev, jobs)
	require.NoError(t, err)
	v.Start()

	dev.fn(barsFrame(t, size))
	dev.fn(barsFrame(t, size))
	assert.Equal(t, uint64(2), v.Dropped())
	assert.False(t, v.busy.Load())
}

func TestUnsupportedFormat(t *testing.T) {
	dev := &fakeDevice{format: FourCC('G', 'R', 'E', 'Y')}
	_, err := New(dev, inline{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPublishTooLarge(t *testing.T) {
	v, err := New(&fakeDevice{format: FormatJPEG}, inline{})
	require.NoError(t, err)
	v.publish(make([]byte, MaxTransferSize+1))
	assert.Equal(t, uint64(0), v.Index())
	assert.Equal(t, uint64(1), v.Dropped())
}

func TestControlLayout(t *testing.T) {
	c := Control{ID: CIDBrightness, Type: ControlInteger, Value: -1, Default: 128, Min: 0, Max: 255, Name: "Brightness"}
	b := c.AppendTo(nil)
	require.Len(t, b, ControlSize)
	assert.Equal(t, []byte{0x00, 0x09, 0x98, 0x00}, b[0:4])
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, b[8:12])
	assert.Equal(t, "Brightness", string(b[24:34]))
	assert.Equal(t, byte(0), b[34])

	got, err := DecodeControl(b)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = DecodeControl(b[:10])
	assert.NotNil(t, err)
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "YUYV", FormatYUYV.String())
	assert.Equal(t, uint32(0x4745504a), uint32(FormatJPEG))
	assert.True(t, FormatMJPEG.Compressed())
	assert.False(t, FormatYUYV.Compressed())
}
