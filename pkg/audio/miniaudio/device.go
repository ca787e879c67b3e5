// Package miniaudio plays scheduled audio on the system's default playback
// device through miniaudio (github.com/gen2brain/malgo).
//
// The device runs in mono s16le. Its audio clock is the number of frames the
// driver has pulled from the [Renderer], so scheduling positions line up
// with what is audible rather than with wall-clock time.
package miniaudio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/playback"
)

// Compile-time assertion that Device satisfies playback.Output.
var _ playback.Output = (*Device)(nil)

// ErrClosed is returned by Play after Close. It is [playback.ErrOutputClosed].
var ErrClosed = playback.ErrOutputClosed

const (
	defaultSampleRate = audio.FragmentSampleRate
)

// Config configures a playback [Device].
type Config struct {
	// SampleRate of the device. Defaults to 24000.
	SampleRate int

	// PeriodMs is the driver period size in milliseconds. Zero lets
	// miniaudio choose.
	PeriodMs int
}

// Device is a miniaudio playback device implementing [playback.Output].
type Device struct {
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	r      *Renderer
	format audio.Format

	notify    *notifier
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// Open initialises miniaudio, opens the default playback device and starts
// it. The caller must call Close.
func Open(cfg Config) (*Device, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init context: %w", err)
	}

	d := &Device{
		ctx:    mctx,
		r:      NewRenderer(cfg.SampleRate),
		format: audio.Format{SampleRate: cfg.SampleRate, Channels: 1},
		notify: newNotifier(),
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	devCfg.Playback.Format = malgo.FormatS16
	devCfg.Playback.Channels = 1
	devCfg.SampleRate = uint32(cfg.SampleRate)
	devCfg.Alsa.NoMMap = 1
	if cfg.PeriodMs > 0 {
		devCfg.PeriodSizeInMilliseconds = uint32(cfg.PeriodMs)
	}

	dev, err := malgo.InitDevice(mctx.Context, devCfg, malgo.DeviceCallbacks{
		Data: d.onData,
	})
	if err != nil {
		d.notify.Stop()
		d.freeContext()
		return nil, fmt.Errorf("miniaudio: init device: %w", err)
	}
	d.dev = dev

	if err := dev.Start(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("miniaudio: start device: %w", err)
	}

	slog.Info("audio device started",
		"sample_rate", cfg.SampleRate,
		"period_ms", cfg.PeriodMs,
	)
	return d, nil
}

// Now implements [playback.Clock].
func (d *Device) Now() time.Duration { return d.r.Now() }

// Format implements [playback.Output].
func (d *Device) Format() audio.Format { return d.format }

// Play implements [playback.Output].
func (d *Device) Play(buf audio.Buffer, at time.Duration, onEnded func()) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if buf.SampleRate != d.format.SampleRate || buf.Channels != 1 {
		return fmt.Errorf("miniaudio: buffer format %dHz/%dch does not match device %dHz mono",
			buf.SampleRate, buf.Channels, d.format.SampleRate)
	}
	d.r.Schedule(buf, at, onEnded)
	return nil
}

// Close stops the device and releases miniaudio resources. Pending
// end-of-playback callbacks are discarded. Idempotent.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		if d.dev != nil {
			d.dev.Uninit()
		}
		d.notify.Stop()
		d.freeContext()
	})
	return nil
}

// onData runs on the driver's audio thread. End-of-playback callbacks are
// handed to the notifier, which runs them in order on its own goroutine.
func (d *Device) onData(out, _ []byte, _ uint32) {
	d.notify.Post(d.r.Render(out)...)
}

func (d *Device) freeContext() {
	if d.ctx == nil {
		return
	}
	_ = d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
}
