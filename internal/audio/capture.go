package audio

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Status messages emitted by Capture.
const (
	StatusRecording  = "Recording..."
	StatusProcessing = "Processing recording..."
	StatusCancelled  = "Recording cancelled"
)

// Notifier receives capture status text and per-chunk levels. Both are
// called from the capture goroutine and must not block.
type Notifier interface {
	Status(msg string)
	Level(level float64)
}

// Capture owns the live microphone stream. At most one capture runs at a
// time; its goroutine is the only writer of the take being built.
type Capture struct {
	opener Opener
	notify Notifier
	log    *zap.SugaredLogger

	framesPerChunk int

	mu     sync.Mutex
	active *captureRun
}

type captureRun struct {
	device int
	stream Stream
	stop   chan struct{}
	done   chan struct{}
	take   *Take
}

func NewCapture(opener Opener, notify Notifier, logger *zap.SugaredLogger) *Capture {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Capture{
		opener:         opener,
		notify:         notify,
		log:            logger,
		framesPerChunk: FramesPerChunk,
	}
}

// Start opens device and begins capturing on a new goroutine. Device
// failures are returned as *DeviceError before any frame is produced.
func (c *Capture) Start(device int, format Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrAlreadyCapturing
	}

	stream, err := c.opener.Open(device, format, c.framesPerChunk)
	if err != nil {
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			err = &DeviceError{Device: device, Op: "open", Err: err}
		}
		return err
	}

	run := &captureRun{
		device: device,
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		take:   &Take{Format: format},
	}
	c.active = run

	c.status(StatusRecording)
	go c.loop(run)

	return nil
}

// Stop ends the capture at the next chunk boundary, releases the device and
// returns what was captured. It returns an empty take when nothing is active.
func (c *Capture) Stop() *Take {
	c.mu.Lock()
	run := c.active
	c.active = nil
	c.mu.Unlock()

	if run == nil {
		return &Take{Format: DefaultFormat()}
	}

	close(run.stop)
	<-run.done

	return run.take
}

func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Capture) loop(run *captureRun) {
	defer close(run.done)

	overflows := 0
	for {
		select {
		case <-run.stop:
			c.finish(run, overflows)
			return
		default:
		}

		chunk, err := run.stream.Read()
		if err != nil && !errors.Is(err, ErrInputOverflow) {
			c.log.Warnw("capture read failed, keeping captured audio", "device", run.device, "frames", len(run.take.Frames), "error", err)
			c.finish(run, overflows)
			return
		}
		if errors.Is(err, ErrInputOverflow) {
			overflows++
		}
		if len(chunk) == 0 {
			continue
		}

		run.take.Frames = append(run.take.Frames, chunk)
		if c.notify != nil {
			c.notify.Level(Level(chunk))
		}
	}
}

func (c *Capture) finish(run *captureRun, overflows int) {
	if err := run.stream.Close(); err != nil {
		c.log.Warnw("close capture stream", "device", run.device, "error", err)
	}
	if overflows > 0 {
		c.log.Warnw("capture input overflowed", "device", run.device, "count", overflows)
	}

	if run.take.Empty() {
		c.status(StatusCancelled)
		return
	}
	c.status(StatusProcessing)
	c.log.Debugw("capture finished", "device", run.device, "chunks", len(run.take.Frames), "samples", run.take.Samples())
}

func (c *Capture) status(msg string) {
	if c.notify != nil {
		c.notify.Status(msg)
	}
}
