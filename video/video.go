package video

import (
	"fmt"
	"github.com/fzft/go-wcam/log"
	"github.com/fzft/go-wcam/pool"
	"github.com/fzft/go-wcam/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"sync"
	"sync/atomic"
)

// MaxTransferSize bounds a published JPEG so a whole REQ_FRAME response fits in 1MiB.
const MaxTransferSize = 0xFFFFF - proto.MaxFrameSize

// Submitter runs blocking work away from the capture and event loop goroutines.
type Submitter interface {
	Submit(job pool.Job) error
}

type Option func(*Video)

func WithEncoder(e Encoder) Option {
	return func(v *Video) { v.enc = e }
}

func WithDecoder(d Decoder) Option {
	return func(v *Video) { v.dec = d }
}

func WithDisplay(d Display) Option {
	return func(v *Video) { v.disp = d }
}

// WithPublishHook is called after a frame is published with its size.
func WithPublishHook(fn func(size int)) Option {
	return func(v *Video) { v.onPublish = fn }
}

// Video turns captured frames into a transferable JPEG slot and a local preview.
//
// Compressed capture: the frame is published as is and, when no preview is in flight,
// a copy is decoded and shown on a pool worker.
// YUYV capture: when no conversion is in flight, a copy is shown, encoded and
// published on a pool worker. Frames arriving meanwhile are dropped.
type Video struct {
	dev  Device
	jobs Submitter
	enc  Encoder
	dec  Decoder
	disp Display
	size Size

	handle    func([]byte)
	onPublish func(int)

	// transfer slot
	mu    sync.Mutex
	frame []byte
	index uint64

	// owned by the single in-flight preview job
	busy atomic.Bool
	view []byte
	out  []byte

	dropped atomic.Uint64
}

func New(dev Device, jobs Submitter, opts ...Option) (*Video, error) {
	codec := JPEGCodec{Quality: DefaultQuality}
	v := &Video{
		dev:  dev,
		jobs: jobs,
		enc:  codec,
		dec:  codec,
		disp: NopDisplay{},
		size: dev.FrameSize(),
	}
	for _, opt := range opts {
		opt(v)
	}

	switch f := dev.Format(); {
	case f.Compressed():
		v.handle = v.handleJPEG
	case f == FormatYUYV:
		v.handle = v.handleYUYV
	default:
		return nil, fmt.Errorf("%w: %s, only JPEG and YUYV are handled", ErrUnsupportedFormat, f)
	}
	return v, nil
}

func (v *Video) Start() error {
	return v.dev.Start(v.handle)
}

// Close stops capture and releases the display. In flight pool jobs may still
// finish afterwards; the display rejects them once closed.
func (v *Video) Close() error {
	return multierr.Combine(v.dev.Stop(), v.disp.Close())
}

func (v *Video) handleJPEG(frame []byte) {
	v.publish(frame)

	if !v.busy.CompareAndSwap(false, true) {
		return
	}
	v.view = append(v.view[:0], frame...)
	v.submit(v.previewJPEG)
}

func (v *Video) previewJPEG() {
	defer v.busy.Store(false)

	var size Size
	var err error
	v.out, size, err = v.dec.DecodeJPEG(v.out[:0], v.view)
	if err != nil {
		log.Logger.Warn("jpeg decode failed", zap.Error(err))
		return
	}
	if err := v.disp.ShowYUYV(v.out, size); err != nil {
		log.Logger.Debug("preview failed", zap.Error(err))
	}
}

func (v *Video) handleYUYV(frame []byte) {
	if !v.busy.CompareAndSwap(false, true) {
		v.dropped.Add(1)
		return
	}
	v.view = append(v.view[:0], frame...)
	v.submit(v.convertYUYV)
}

func (v *Video) convertYUYV() {
	defer v.busy.Store(false)

	if err := v.disp.ShowYUYV(v.view, v.size); err != nil {
		log.Logger.Debug("preview failed", zap.Error(err))
	}

	var err error
	v.out, err = v.enc.EncodeYUYV(v.out[:0], v.view, v.size)
	if err != nil {
		log.Logger.Warn("jpeg encode failed", zap.Error(err))
		return
	}
	v.publish(v.out)
}

func (v *Video) submit(job pool.Job) {
	if err := v.jobs.Submit(job); err != nil {
		v.busy.Store(false)
		v.dropped.Add(1)
		log.Logger.Debug("frame job rejected", zap.Error(err))
	}
}

func (v *Video) publish(jpeg []byte) {
	if len(jpeg) > MaxTransferSize {
		v.dropped.Add(1)
		log.Logger.Warn("frame too large to transfer", zap.Int("size", len(jpeg)))
		return
	}

	v.mu.Lock()
	v.frame = append(v.frame[:0], jpeg...)
	v.index++
	v.mu.Unlock()

	if v.onPublish != nil {
		v.onPublish(len(jpeg))
	}
}

// AppendLatest appends the published frame to dst when it is newer than since.
// It returns the extended slice and the frame's index, or dst and since unchanged
// when nothing new has been published.
func (v *Video) AppendLatest(since uint64, dst []byte) ([]byte, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.index == since {
		return dst, since
	}
	return append(dst, v.frame...), v.index
}

// Index is the number of frames published so far.
func (v *Video) Index() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.index
}

// Dropped counts frames that were neither converted nor published.
func (v *Video) Dropped() uint64 {
	return v.dropped.Load()
}

// TransferFormat is the format of frames handed to clients, always JPEG.
func (v *Video) TransferFormat() Format {
	return FormatJPEG
}

func (v *Video) FrameSize() Size {
	return v.size
}

func (v *Video) Controls() []Control {
	return v.dev.Controls()
}

func (v *Video) Control(id uint32) (int32, error) {
	return v.dev.Control(id)
}

func (v *Video) SetControl(id uint32, value int32) error {
	return v.dev.SetControl(id, value)
}

func (v *Video) ResetControls() error {
	return v.dev.ResetControls()
}
