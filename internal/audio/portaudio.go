package audio

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

// Sink plays a tone and returns once it has finished.
type Sink interface {
	PlayTone(ctx context.Context, freq float64, d time.Duration) error
}

// loopbackKeywords name virtual devices that route audio back into capture
// rather than to speakers.
var loopbackKeywords = []string{"blackhole", "vb-cable", "loopback", "monitor", "soundflower"}

// PortAudioSink plays tones on the default output device through PortAudio.
type PortAudioSink struct {
	mu     sync.Mutex // one tone at a time
	device *portaudio.DeviceInfo
	amp    float32
}

// NewPortAudioSink initializes PortAudio and picks an output device.
// Failure here is fatal for the caller.
func NewPortAudioSink() (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.AudioInitFailed, "initialize portaudio")
	}
	def, err := portaudio.DefaultOutputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, apperrors.Wrap(err, apperrors.AudioInitFailed, "no default output device")
	}
	devices, err := portaudio.Devices()
	if err != nil {
		devices = nil
	}
	dev := pickOutput(def, devices)
	slog.Info("audio output selected", "device", dev.Name, "sample_rate", dev.DefaultSampleRate)
	return &PortAudioSink{device: dev, amp: DefaultAmplitude}, nil
}

// PlayTone plays freq for d and blocks until playback finished or ctx ended.
func (p *PortAudioSink) PlayTone(ctx context.Context, freq float64, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	params := portaudio.HighLatencyParameters(nil, p.device)
	params.Output.Channels = 1
	if params.SampleRate <= 0 {
		params.SampleRate = DefaultSampleRate
	}
	if freq <= 0 || freq >= params.SampleRate/2 {
		return apperrors.Newf(apperrors.InvalidArgument, "tone %.0f Hz not playable at %.0f Hz", freq, params.SampleRate)
	}

	sine := NewSine(freq, d, params.SampleRate, p.amp)
	done := make(chan struct{})
	var once sync.Once
	stream, err := portaudio.OpenStream(params, func(out []float32) {
		if !sine.Fill(out) {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.AudioPlaybackFailed, "open output stream")
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return apperrors.Wrap(err, apperrors.AudioPlaybackFailed, "start output stream")
	}
	select {
	case <-done:
		// let the final buffer drain
		time.Sleep(params.Output.Latency)
	case <-ctx.Done():
		_ = stream.Abort()
		return apperrors.Wrap(ctx.Err(), apperrors.Timeout, "tone playback")
	}
	if err := stream.Stop(); err != nil {
		return apperrors.Wrap(err, apperrors.AudioPlaybackFailed, "stop output stream")
	}
	return nil
}

// Close releases PortAudio.
func (p *PortAudioSink) Close() error {
	return portaudio.Terminate()
}

// pickOutput keeps def unless it is a loopback device, in which case the
// first real output device wins.
func pickOutput(def *portaudio.DeviceInfo, devices []*portaudio.DeviceInfo) *portaudio.DeviceInfo {
	if !isLoopback(def.Name) {
		return def
	}
	for _, dev := range devices {
		if dev.MaxOutputChannels > 0 && !isLoopback(dev.Name) {
			return dev
		}
	}
	return def
}

func isLoopback(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range loopbackKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
