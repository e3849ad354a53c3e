package ingest

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"os/exec"

	"github.com/BrickBench/AutoMarathon/internal/audio"
	"github.com/BrickBench/AutoMarathon/internal/backoff"
	pkglog "github.com/BrickBench/AutoMarathon/pkg/log"
)

// decode pulls one runner's media stream through ffmpeg, emitting 48 kHz
// stereo f32 frames. It reconnects with backoff on upstream drops; consumer
// rings simply underrun to silence in the meantime.
type decode struct {
	runner  int64
	url     string
	ffmpeg  string
	deliver func(d *decode, samples []float32)
	cancel  context.CancelFunc
	done    chan struct{}
}

const decodeChunkSamples = 4096

func startDecode(parent context.Context, ffmpegPath string, runner int64, url string, deliver func(*decode, []float32)) *decode {
	ctx, cancel := context.WithCancel(parent)
	d := &decode{
		runner:  runner,
		url:     url,
		ffmpeg:  ffmpegPath,
		deliver: deliver,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

func (d *decode) stop() {
	d.cancel()
	<-d.done
}

func (d *decode) run(ctx context.Context) {
	defer close(d.done)

	logger := pkglog.L().With().Int64(pkglog.FieldRunner, d.runner).Logger()
	retry := backoff.New()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		err := d.pull(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("media decode ended, reconnecting")
		if !retry.Sleep(ctx, attempt) {
			return
		}
	}
}

// pull runs one ffmpeg process until it exits.
func (d *decode) pull(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, d.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", d.url,
		"-vn",
		"-f", "f32le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	raw := make([]byte, decodeChunkSamples*4)
	samples := make([]float32, decodeChunkSamples)
	for {
		n, err := io.ReadFull(stdout, raw)
		if n >= 4 {
			count := n / 4
			for i := 0; i < count; i++ {
				bits := binary.LittleEndian.Uint32(raw[i*4:])
				samples[i] = float32frombits(bits)
			}
			d.deliver(d, samples[:count])
		}
		if err != nil {
			cmd.Wait()
			return err
		}
	}
}

func float32frombits(bits uint32) float32 {
	f := math.Float32frombits(bits)
	// NaN or infinite samples from a corrupt stream become silence.
	if f != f || f > 4 || f < -4 {
		return 0
	}
	return f
}

// ringSamples converts a buffer length in seconds to ring capacity.
func ringSamples(seconds int) int {
	if seconds <= 0 {
		seconds = 2
	}
	return seconds * audio.SampleRate * audio.Channels
}
