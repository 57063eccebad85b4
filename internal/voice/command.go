package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/synthwave/internal/audio"
)

const stopGrace = 700 * time.Millisecond

// CommandAvailable reports whether the program named by argv[0] can be run.
func CommandAvailable(argv []string) error {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return errors.New("empty command")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

// CommandCapture records by running an external program that writes audio
// to stdout until interrupted. With RawPCM set the output is treated as
// 16-bit mono PCM and wrapped in a WAV container.
type CommandCapture struct {
	Command    []string
	RawPCM     bool
	SampleRate int
	Logger     *slog.Logger
}

func (c *CommandCapture) Open(ctx context.Context) (Recorder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CommandAvailable(c.Command); err != nil {
		return nil, fmt.Errorf("audio capture unavailable: %w", err)
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &commandRecorder{
		argv:       append([]string(nil), c.Command...),
		rawPCM:     c.RawPCM,
		sampleRate: c.SampleRate,
		logger:     logger.With("component", "capture"),
	}, nil
}

type commandRecorder struct {
	argv       []string
	rawPCM     bool
	sampleRate int
	logger     *slog.Logger

	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	once   sync.Once
	out    chan []byte
}

func (r *commandRecorder) Start() error {
	cmd := exec.Command(r.argv[0], r.argv[1:]...)
	cmd.Stdout = &r.stdout
	cmd.Stderr = &r.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.argv[0], err)
	}
	r.cmd = cmd
	return nil
}

func (r *commandRecorder) Stop() <-chan []byte {
	r.once.Do(func() {
		r.out = make(chan []byte, 1)
		go func() {
			defer close(r.out)
			if r.cmd == nil {
				r.out <- nil
				return
			}
			if err := stopProcess(r.cmd, stopGrace); err != nil {
				r.logger.Debug("recorder exited", "error", err, "stderr", tail(r.stderr.String()))
			}
			data := r.stdout.Bytes()
			if r.rawPCM {
				data = audio.EncodeWAV(data, r.sampleRate)
			}
			r.out <- data
		}()
	})
	return r.out
}

// CommandPlayer pipes each reply into a fresh external player process.
type CommandPlayer struct {
	Command []string
	Logger  *slog.Logger
}

func (p *CommandPlayer) Play(data []byte) (Playback, error) {
	if err := CommandAvailable(p.Command); err != nil {
		return nil, fmt.Errorf("audio playback unavailable: %w", err)
	}
	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.Command[0], err)
	}

	pb := &commandPlayback{cmd: cmd, done: make(chan struct{})}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		err := cmd.Wait()
		if err != nil && !pb.stopped() {
			logger.Warn("player exited with error", "error", err, "stderr", tail(stderr.String()))
		}
		close(pb.done)
	}()
	return pb, nil
}

type commandPlayback struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	stopReq bool
}

func (p *commandPlayback) Done() <-chan struct{} { return p.done }

func (p *commandPlayback) Stop() {
	p.mu.Lock()
	if p.stopReq {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.stopReq = true
	p.mu.Unlock()

	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

func (p *commandPlayback) stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopReq
}

// stopProcess interrupts cmd and waits for it, killing it after grace.
func stopProcess(cmd *exec.Cmd, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(os.Interrupt)
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		err := <-done
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 2<<10 {
		s = strings.TrimSpace(s[len(s)-(2<<10):])
	}
	return s
}
