package voice

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/synthwave/internal/audio"
)

// MockCapture is a local fallback used when no capture command is
// available. Every recording is a silent clip of Duration.
type MockCapture struct {
	SampleRate int
	Duration   time.Duration
	// Err, when set, is returned from Open.
	Err error

	mu    sync.Mutex
	opens int
}

func NewMockCapture() *MockCapture {
	return &MockCapture{SampleRate: 16000, Duration: 250 * time.Millisecond}
}

func (c *MockCapture) Open(ctx context.Context) (Recorder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	c.opens++
	sr := c.SampleRate
	if sr <= 0 {
		sr = 16000
	}
	samples := int(c.Duration.Seconds() * float64(sr))
	return &mockRecorder{clip: audio.EncodeWAV(make([]byte, samples*2), sr)}, nil
}

// Opens counts successful Open calls.
func (c *MockCapture) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

type mockRecorder struct {
	clip []byte
	once sync.Once
	out  chan []byte
}

func (r *mockRecorder) Start() error { return nil }

func (r *mockRecorder) Stop() <-chan []byte {
	r.once.Do(func() {
		r.out = make(chan []byte, 1)
		r.out <- r.clip
		close(r.out)
	})
	return r.out
}

// MockPlayer records every payload instead of producing sound. Playback
// lasts Duration, or until stopped when Duration is zero.
type MockPlayer struct {
	Duration time.Duration

	mu     sync.Mutex
	played [][]byte
	stops  int
}

func NewMockPlayer() *MockPlayer { return &MockPlayer{} }

func (p *MockPlayer) Play(data []byte) (Playback, error) {
	p.mu.Lock()
	p.played = append(p.played, append([]byte(nil), data...))
	p.mu.Unlock()

	pb := &mockPlayback{player: p, done: make(chan struct{})}
	if p.Duration > 0 {
		time.AfterFunc(p.Duration, pb.finish)
	}
	return pb, nil
}

// Played returns copies of every payload handed to Play, oldest first.
func (p *MockPlayer) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

// Stops counts playbacks halted by Stop before they finished.
func (p *MockPlayer) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

type mockPlayback struct {
	player *MockPlayer
	once   sync.Once
	done   chan struct{}
}

func (pb *mockPlayback) Done() <-chan struct{} { return pb.done }

func (pb *mockPlayback) Stop() {
	pb.once.Do(func() {
		pb.player.mu.Lock()
		pb.player.stops++
		pb.player.mu.Unlock()
		close(pb.done)
	})
}

func (pb *mockPlayback) finish() {
	pb.once.Do(func() { close(pb.done) })
}
