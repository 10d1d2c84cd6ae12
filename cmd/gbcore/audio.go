package main

import (
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ebitengine/oto/v3"

	"github.com/valerio/go-gbcore/gbcore/bit"
)

// The engine emits one stereo sample per two emulated cycles, far above any
// host rate. Keeping every 32nd sample lands on 65536 Hz, which sound
// devices and WAV consumers both handle.
const (
	decimation     = 32
	hostSampleRate = 2097152 / decimation
)

// downsample decimates packed engine samples into interleaved 16-bit PCM.
func downsample(samples []uint32) []int16 {
	out := make([]int16, 0, (len(samples)/decimation+1)*2)
	for i := 0; i < len(samples); i += decimation {
		left, right := bit.Unpack(samples[i])
		out = append(out, left, right)
	}
	return out
}

type wavCapture struct {
	f   *os.File
	enc *wav.Encoder
}

func newWavCapture(path string) (*wavCapture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &wavCapture{
		f:   f,
		enc: wav.NewEncoder(f, hostSampleRate, 16, 2, 1),
	}, nil
}

func (w *wavCapture) push(pcm []int16) error {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: hostSampleRate},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: 16,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}
	return w.enc.Write(buf)
}

func (w *wavCapture) Close() error {
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// audioPlayer queues PCM for the host sound device, feeding silence when
// emulation falls behind.
type audioPlayer struct {
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	pending []byte
}

func newAudioPlayer() (*audioPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   hostSampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	p := &audioPlayer{ctx: ctx}
	p.player = ctx.NewPlayer(p)
	p.player.Play()
	return p, nil
}

func (p *audioPlayer) push(pcm []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range pcm {
		p.pending = append(p.pending, byte(s), byte(uint16(s)>>8))
	}
	// cap queued audio at roughly half a second to bound latency
	if limit := hostSampleRate * 2; len(p.pending) > limit {
		p.pending = p.pending[len(p.pending)-limit:]
	}
}

// Read implements io.Reader for the oto player.
func (p *audioPlayer) Read(out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := copy(out, p.pending)
	p.pending = p.pending[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return len(out), nil
}

func (p *audioPlayer) Close() {
	p.player.Close()
}
