package speech

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/tarmac-rally/codriver/internal/log"
)

// ExecOptions configures the subprocess speaker.
type ExecOptions struct {
	Voice    string // say/espeak voice, default en-gb
	SpeedWPM int    // speaking rate, default 190
	Effects  bool   // apply the intercom effect chain when sox is present
}

// Exec speaks through a local TTS binary. It probes for espeak-ng, espeak,
// and say, in that order, and uses sox and aplay/afplay when available.
type Exec struct {
	opts   ExecOptions
	engine string // resolved TTS binary
	sox    string
	player string
	tmp    string
	closed bool
}

// NewExec resolves the local audio toolchain. ErrNoEngine means no TTS
// binary is installed at all.
func NewExec(opts ExecOptions) (*Exec, error) {
	if opts.Voice == "" {
		opts.Voice = "en-gb"
	}
	if opts.SpeedWPM == 0 {
		opts.SpeedWPM = 190
	}

	engine := ""
	for _, name := range []string{"espeak-ng", "espeak", "say"} {
		if p, err := exec.LookPath(name); err == nil {
			engine = p
			break
		}
	}
	if engine == "" {
		return nil, ErrNoEngine
	}

	e := &Exec{opts: opts, engine: engine}
	if p, err := exec.LookPath("sox"); err == nil {
		e.sox = p
	}
	for _, name := range []string{"aplay", "afplay"} {
		if p, err := exec.LookPath(name); err == nil {
			e.player = p
			break
		}
	}

	tmp, err := os.MkdirTemp("", "codriver-speech-")
	if err != nil {
		return nil, err
	}
	e.tmp = tmp

	log.Debug("speech: toolchain resolved",
		"engine", engine, "sox", e.sox != "", "player", e.player)
	return e, nil
}

// Speak renders and plays one utterance. Without sox or a player it falls
// back to the engine's own audio output.
func (e *Exec) Speak(ctx context.Context, text string) error {
	if e.closed {
		return ErrClosed
	}
	if e.sox == "" || e.player == "" || !e.opts.Effects {
		return e.speakDirect(ctx, text)
	}

	raw := filepath.Join(e.tmp, "raw.wav")
	if err := e.renderFile(ctx, text, raw); err != nil {
		return e.speakDirect(ctx, text)
	}

	// Helmet intercom: band-limit, compress, a touch of clipping.
	processed := filepath.Join(e.tmp, "processed.wav")
	soxArgs := []string{raw, processed,
		"highpass", "400",
		"lowpass", "3200",
		"compand", "0.1,0.3", "-70,-60,-20", "-8", "-90", "0.1",
		"overdrive", "3",
		"gain", "-5",
	}
	if err := exec.CommandContext(ctx, e.sox, soxArgs...).Run(); err != nil {
		log.Warn("speech: effects chain failed", "error", err)
		return e.speakDirect(ctx, text)
	}
	return e.play(ctx, processed)
}

func (e *Exec) renderFile(ctx context.Context, text, out string) error {
	if filepath.Base(e.engine) == "say" {
		aiff := out[:len(out)-len(".wav")] + ".aiff"
		cmd := exec.CommandContext(ctx, e.engine,
			"-v", e.opts.Voice, "-r", strconv.Itoa(e.opts.SpeedWPM), "-o", aiff, text)
		if err := cmd.Run(); err != nil {
			return err
		}
		return exec.CommandContext(ctx, e.sox, aiff, out).Run()
	}
	return exec.CommandContext(ctx, e.engine,
		"-v", e.opts.Voice, "-s", strconv.Itoa(e.opts.SpeedWPM), "-w", out, text).Run()
}

func (e *Exec) speakDirect(ctx context.Context, text string) error {
	var cmd *exec.Cmd
	if filepath.Base(e.engine) == "say" {
		cmd = exec.CommandContext(ctx, e.engine,
			"-v", e.opts.Voice, "-r", strconv.Itoa(e.opts.SpeedWPM), text)
	} else {
		cmd = exec.CommandContext(ctx, e.engine,
			"-v", e.opts.Voice, "-s", strconv.Itoa(e.opts.SpeedWPM), text)
	}
	return cmd.Run()
}

func (e *Exec) play(ctx context.Context, path string) error {
	if filepath.Base(e.player) == "aplay" {
		return exec.CommandContext(ctx, e.player, "-q", path).Run()
	}
	return exec.CommandContext(ctx, e.player, path).Run()
}

// Close removes the scratch directory. Further Speak calls fail.
func (e *Exec) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return os.RemoveAll(e.tmp)
}

var _ Speaker = (*Exec)(nil)
