// perfvoice replays synthetic push-to-talk turns against a voice-chat
// socket and reports reply latency percentiles.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/ent0n29/synthwave/internal/audio"
	"github.com/ent0n29/synthwave/internal/observability"
)

type options struct {
	voiceURL       string
	turns          int
	wavPath        string
	toneMS         int
	sampleRate     int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

// reply is one inbound frame from the voice socket.
type reply struct {
	audio []byte
	text  string
}

type summary struct {
	Turns   int
	Errors  int
	Latency observability.LatencyStats
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	result, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("perfvoice: turns=%d errors=%d p50=%.0fms p95=%.0fms p99=%.0fms\n",
		result.Turns, result.Errors, result.Latency.P50MS, result.Latency.P95MS, result.Latency.P99MS)
}

func parseFlags(args []string) (options, error) {
	var cfg options
	flagSet := pflag.NewFlagSet("perfvoice", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.voiceURL, "voice-ws-url", "ws://localhost:8080/api/ws/voice-chat", "voice chat socket URL")
	flagSet.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flagSet.StringVar(&cfg.wavPath, "wav", "", "recording to send each turn (default: synthetic tone)")
	flagSet.IntVar(&cfg.toneMS, "tone-ms", 1200, "synthetic tone length in milliseconds")
	flagSet.IntVar(&cfg.sampleRate, "sample-rate", 16000, "synthetic tone sample rate")
	flagSet.DurationVar(&cfg.interTurnDelay, "inter-turn", 180*time.Millisecond, "delay between turns")
	flagSet.DurationVar(&cfg.turnTimeout, "turn-timeout", 15*time.Second, "timeout waiting for each reply")
	flagSet.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}

	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if cfg.wavPath == "" && (cfg.toneMS < 10 || cfg.toneMS > 60000) {
		return options{}, fmt.Errorf("tone-ms must be in [10,60000]")
	}
	if cfg.sampleRate <= 0 {
		return options{}, fmt.Errorf("sample-rate must be > 0")
	}
	if cfg.turnTimeout < time.Second {
		cfg.turnTimeout = time.Second
	}
	if cfg.interTurnDelay < 0 {
		cfg.interTurnDelay = 0
	}
	return cfg, nil
}

func loadRecording(cfg options) ([]byte, error) {
	if cfg.wavPath == "" {
		return audio.EncodeWAV(synthTone(cfg.toneMS, cfg.sampleRate), cfg.sampleRate), nil
	}
	data, err := os.ReadFile(cfg.wavPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", cfg.wavPath)
	}
	return data, nil
}

// synthTone returns a 440 Hz mono PCM16 sine of the given length.
func synthTone(ms, sampleRate int) []byte {
	samples := sampleRate * ms / 1000
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return pcm
}

func run(ctx context.Context, cfg options, out io.Writer) (summary, error) {
	recording, err := loadRecording(cfg)
	if err != nil {
		return summary{}, fmt.Errorf("prepare recording: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.voiceURL, nil)
	if err != nil {
		return summary{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replies := make(chan reply, 8)
	readErrCh := make(chan error, 1)
	go readLoop(conn, replies, readErrCh)

	metrics := observability.NewMetrics("perfvoice")
	result := summary{}
	if cfg.verbose {
		fmt.Fprintf(out, "perfvoice: url=%s turns=%d recording=%s bytes=%d\n",
			cfg.voiceURL, cfg.turns, audio.Sniff(recording), len(recording))
	}

	for i := 0; i < cfg.turns; i++ {
		started := time.Now()
		if err := conn.WriteMessage(websocket.BinaryMessage, recording); err != nil {
			return result, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		got, err := awaitReply(ctx, replies, readErrCh, cfg.turnTimeout)
		if err != nil {
			return result, fmt.Errorf("turn %d await reply: %w", i+1, err)
		}
		elapsed := time.Since(started)
		result.Turns++

		if got.audio == nil {
			result.Errors++
			if cfg.verbose {
				fmt.Fprintf(out, "perfvoice: turn %d/%d server error: %s\n", i+1, cfg.turns, got.text)
			}
		} else {
			metrics.ObserveReplyLatency(elapsed)
			if cfg.verbose {
				fmt.Fprintf(out, "perfvoice: turn %d/%d reply=%s bytes=%d latency=%s\n",
					i+1, cfg.turns, audio.Sniff(got.audio), len(got.audio), elapsed.Round(time.Millisecond))
			}
		}

		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	for _, stats := range metrics.SnapshotLatency().Operations {
		if stats.Operation == observability.OpVoiceReply {
			result.Latency = stats
		}
	}
	return result, nil
}

func readLoop(conn *websocket.Conn, replies chan<- reply, readErrCh chan<- error) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		switch messageType {
		case websocket.BinaryMessage:
			replies <- reply{audio: data}
		case websocket.TextMessage:
			replies <- reply{text: string(data)}
		}
	}
}

func awaitReply(ctx context.Context, replies <-chan reply, readErrCh <-chan error, timeout time.Duration) (reply, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case got := <-replies:
		return got, nil
	case err := <-readErrCh:
		return reply{}, err
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-timer.C:
		return reply{}, fmt.Errorf("timeout after %s", timeout)
	}
}
