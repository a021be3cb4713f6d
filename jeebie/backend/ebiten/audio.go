//go:build ebiten

package ebiten

import (
	"encoding/binary"

	"github.com/ebitengine/oto/v3"

	"github.com/valerio/go-jeebie/jeebie/audio"
)

const (
	sampleRate    = 44100
	otoBufferSize = 512
)

// audioSink feeds the APU's interleaved stereo sample stream to an oto/v3
// player as 16-bit stereo PCM, giving the ebiten backend audio parity with the SDL2
// backend's queued-audio output.
type audioSink struct {
	ctx      *oto.Context
	player   *oto.Player
	provider audio.Provider
}

func newAudioSink(provider audio.Provider) (*audioSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferSize,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	stream := &apuStream{provider: provider}
	player := ctx.NewPlayer(stream)

	return &audioSink{ctx: ctx, player: player, provider: provider}, nil
}

func (s *audioSink) Start() {
	s.player.Play()
}

func (s *audioSink) Close() {
	s.player.Close()
}

// apuStream implements io.Reader, writing the APU's interleaved stereo int16
// samples as little-endian bytes the oto player pulls on demand.
type apuStream struct {
	provider audio.Provider
}

func (a *apuStream) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	samples := a.provider.GetSamples(frames)

	n := 0
	for _, s := range samples {
		binary.LittleEndian.PutUint16(p[n:], uint16(s))
		n += 2
	}

	for ; n < len(p); n += 2 {
		binary.LittleEndian.PutUint16(p[n:], 0)
	}

	return len(p), nil
}
