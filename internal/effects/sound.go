package effects

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "notigate/pkg/logx"
)

// Playback binaries tried in order; first hit wins.
var playerCandidates = []string{"paplay", "aplay", "play", "afplay"}

// Player synthesizes and plays notification tones. Satisfies
// notify.Sounder.
//
// A token bucket caps tone output so a burst of notifications does not turn
// into a siren: excess tones are dropped silently.
type Player struct {
	log     logx.Logger
	limiter *rate.Limiter

	once sync.Once
	bin  string
}

func NewPlayer(log logx.Logger) *Player {
	return &Player{
		log:     log,
		limiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 3),
	}
}

func (p *Player) binary() string {
	p.once.Do(func() {
		for _, c := range playerCandidates {
			if path, err := exec.LookPath(c); err == nil {
				p.bin = path
				return
			}
		}
	})
	return p.bin
}

func (p *Player) Available() bool { return p.binary() != "" }

func (p *Player) Play(freqHz float64, d time.Duration) error {
	bin := p.binary()
	if bin == "" {
		return nil
	}
	if !p.limiter.Allow() {
		p.log.Debug("tone dropped by rate limit", logx.Float64("freq_hz", freqHz))
		return nil
	}

	clip := Synthesize(freqHz, d)
	if clip == nil {
		return nil
	}

	f, err := os.CreateTemp("", "notigate-tone-*.wav")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(clip); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), d+2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, bin, path)
	if filepath.Base(bin) == "aplay" {
		cmd = exec.CommandContext(ctx, bin, "-q", path)
	}
	return cmd.Run()
}
