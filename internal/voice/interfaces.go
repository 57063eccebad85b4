package voice

import "context"

// Capture acquires the audio input. Open is where device or permission
// failures surface.
type Capture interface {
	Open(ctx context.Context) (Recorder, error)
}

// Recorder buffers one utterance. Stop may be called once; the returned
// channel yields the complete recording after the device has fully stopped
// and is then closed.
type Recorder interface {
	Start() error
	Stop() <-chan []byte
}

type Player interface {
	Play(audio []byte) (Playback, error)
}

// Playback is one in-flight reply. Done is closed when playback ends for
// any reason, including Stop.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}
