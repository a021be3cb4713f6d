//go:build ebiten

package ebiten

import (
	"fmt"
	"log/slog"
	"sync"

	gebiten "github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/input/event"
	"github.com/valerio/go-jeebie/jeebie/video"
)

const pixelScale = 4

// Backend implements the Backend interface on top of ebiten, a pure-Go
// rendering library that needs no cgo. ebiten owns its own blocking game
// loop (ebiten.RunGame), which is fundamentally push-based, while Backend's
// Update is pull-based (driven once per emulated frame by the outer run
// loop). A background goroutine runs the ebiten loop and a small game type
// bridges the two: Backend.Update hands it the latest framebuffer and
// drains whatever input it collected since the last call.
type Backend struct {
	game *game

	audioSink *audioSink

	started bool
}

// New creates a new ebiten backend.
func New() *Backend {
	return &Backend{game: newGame()}
}

// Init launches the ebiten window in a background goroutine and blocks
// until its first Draw call, so the window is visible before Update runs.
func (b *Backend) Init(config backend.BackendConfig) error {
	gebiten.SetWindowSize(video.FramebufferWidth*pixelScale, video.FramebufferHeight*pixelScale)
	gebiten.SetWindowTitle(config.Title)
	gebiten.SetWindowResizable(true)

	go func() {
		if err := gebiten.RunGame(b.game); err != nil {
			slog.Error("ebiten backend exited", "error", err)
		}
	}()

	<-b.game.ready

	if config.AudioProvider != nil && !config.TestPattern {
		sink, err := newAudioSink(config.AudioProvider)
		if err != nil {
			slog.Warn("failed to initialize ebiten audio sink", "error", err)
		} else {
			b.audioSink = sink
			b.audioSink.Start()
		}
	}

	b.started = true
	slog.Info("ebiten backend initialized")

	return nil
}

// Update hands the latest frame to the render goroutine and drains input
// events collected by the ebiten game loop since the previous call.
func (b *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	if !b.started {
		return nil, fmt.Errorf("ebiten backend not initialized")
	}

	b.game.setFrame(frame)

	events := b.game.drainEvents()
	if b.game.closed() {
		events = append(events, backend.InputEvent{Action: action.EmulatorQuit, Type: event.Press})
	}

	return events, nil
}

// Cleanup stops the ebiten loop and closes the audio sink.
func (b *Backend) Cleanup() error {
	slog.Info("cleaning up ebiten backend")

	b.game.requestQuit()

	if b.audioSink != nil {
		b.audioSink.Close()
	}

	return nil
}

// HandleBackendAction processes backend-specific actions; the ebiten
// backend has no debug window or test-pattern cycling of its own, so only
// audio debugging controls apply here.
func (b *Backend) HandleBackendAction(act action.Action) {
	if b.audioSink == nil {
		return
	}

	provider := b.audioSink.provider

	switch act {
	case action.AudioToggleChannel1:
		provider.ToggleChannel(1)
	case action.AudioToggleChannel2:
		provider.ToggleChannel(2)
	case action.AudioToggleChannel3:
		provider.ToggleChannel(3)
	case action.AudioToggleChannel4:
		provider.ToggleChannel(4)
	case action.AudioSoloChannel1:
		provider.SoloChannel(1)
	case action.AudioSoloChannel2:
		provider.SoloChannel(2)
	case action.AudioSoloChannel3:
		provider.SoloChannel(3)
	case action.AudioSoloChannel4:
		provider.SoloChannel(4)
	}
}

// game implements ebiten.Game. It is kept distinct from Backend because
// ebiten.Game.Update() error and backend.Backend.Update(frame) collide on
// the method name with incompatible signatures.
type game struct {
	mu     sync.Mutex
	frame  *video.FrameBuffer
	pixels []byte
	img    *gebiten.Image

	eventMu sync.Mutex
	events  []backend.InputEvent

	ready     chan struct{}
	readyOnce sync.Once

	quit       chan struct{}
	quitOnce   sync.Once
	windowShut bool
}

func newGame() *game {
	return &game{
		pixels: make([]byte, video.FramebufferWidth*video.FramebufferHeight*4),
		img:    gebiten.NewImage(video.FramebufferWidth, video.FramebufferHeight),
		ready:  make(chan struct{}),
		quit:   make(chan struct{}),
	}
}

func (g *game) setFrame(frame *video.FrameBuffer) {
	g.mu.Lock()
	g.frame = frame
	g.mu.Unlock()
}

func (g *game) drainEvents() []backend.InputEvent {
	g.eventMu.Lock()
	defer g.eventMu.Unlock()

	if len(g.events) == 0 {
		return nil
	}

	out := g.events
	g.events = nil
	return out
}

func (g *game) pushEvent(evt backend.InputEvent) {
	g.eventMu.Lock()
	g.events = append(g.events, evt)
	g.eventMu.Unlock()
}

func (g *game) requestQuit() {
	g.quitOnce.Do(func() { close(g.quit) })
}

func (g *game) closed() bool {
	select {
	case <-g.quit:
		return g.windowShut
	default:
		return false
	}
}

// keyMapping mirrors the sdl2 backend's key table, translated to ebiten's
// key constants.
var keyMapping = map[gebiten.Key]action.Action{
	gebiten.KeyF10:     action.EmulatorDebugUpdate,
	gebiten.KeyF11:     action.EmulatorDebugToggle,
	gebiten.KeyF12:     action.EmulatorSnapshot,
	gebiten.KeyEscape:  action.EmulatorQuit,
	gebiten.KeySpace:   action.EmulatorPauseToggle,
	gebiten.KeyT:       action.EmulatorTestPatternCycle,
	gebiten.KeyF1:      action.AudioToggleChannel1,
	gebiten.KeyF2:      action.AudioToggleChannel2,
	gebiten.KeyF3:      action.AudioToggleChannel3,
	gebiten.KeyF4:      action.AudioToggleChannel4,
	gebiten.KeyF5:      action.AudioSoloChannel1,
	gebiten.KeyF6:      action.AudioSoloChannel2,
	gebiten.KeyF7:      action.AudioSoloChannel3,
	gebiten.KeyF8:      action.AudioSoloChannel4,
	gebiten.KeyD:       action.AudioShowStatus,
	gebiten.KeyEnter:   action.GBButtonStart,
	gebiten.KeyA:       action.GBButtonA,
	gebiten.KeyS:       action.GBButtonB,
	gebiten.KeyQ:       action.GBButtonSelect,
	gebiten.KeyArrowUp:    action.GBDPadUp,
	gebiten.KeyArrowDown:  action.GBDPadDown,
	gebiten.KeyArrowLeft:  action.GBDPadLeft,
	gebiten.KeyArrowRight: action.GBDPadRight,
}

func isGBButton(act action.Action) bool {
	switch act {
	case action.GBButtonA, action.GBButtonB, action.GBButtonStart, action.GBButtonSelect,
		action.GBDPadUp, action.GBDPadDown, action.GBDPadLeft, action.GBDPadRight:
		return true
	}
	return false
}

// Update implements ebiten.Game. It runs on ebiten's own ~60Hz loop,
// independent of the emulator's frame cadence.
func (g *game) Update() error {
	if gebiten.IsWindowBeingClosed() {
		g.windowShut = true
		g.requestQuit()
		return gebiten.Termination
	}

	select {
	case <-g.quit:
		return gebiten.Termination
	default:
	}

	for key, act := range keyMapping {
		switch {
		case inpututil.IsKeyJustPressed(key):
			g.pushEvent(backend.InputEvent{Action: act, Type: event.Press})
		case inpututil.IsKeyJustReleased(key):
			if isGBButton(act) {
				g.pushEvent(backend.InputEvent{Action: act, Type: event.Release})
			}
		case gebiten.IsKeyPressed(key):
			g.pushEvent(backend.InputEvent{Action: act, Type: event.Hold})
		}
	}

	return nil
}

// Draw implements ebiten.Game, copying the latest framebuffer onto the
// screen image. The first call unblocks Backend.Init.
func (g *game) Draw(screen *gebiten.Image) {
	g.mu.Lock()
	frame := g.frame
	g.mu.Unlock()

	if frame != nil {
		frameData := frame.ToSlice()
		for i, gbPixel := range frameData {
			r, gg, b, a := gbColorToRGBA(gbPixel)
			g.pixels[i*4+0] = r
			g.pixels[i*4+1] = gg
			g.pixels[i*4+2] = b
			g.pixels[i*4+3] = a
		}
		g.img.WritePixels(g.pixels)
	}

	screen.DrawImage(g.img, nil)

	g.readyOnce.Do(func() { close(g.ready) })
}

// Layout implements ebiten.Game, fixing the logical resolution to the Game
// Boy screen; ebiten handles the scale-up to the window size itself.
func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return video.FramebufferWidth, video.FramebufferHeight
}

func gbColorToRGBA(gbColor uint32) (r, g, b, a uint8) {
	switch gbColor {
	case uint32(video.WhiteColor):
		return 255, 255, 255, 255
	case uint32(video.LightGreyColor):
		return 0x98, 0x98, 0x98, 255
	case uint32(video.DarkGreyColor):
		return 0x4C, 0x4C, 0x4C, 255
	case uint32(video.BlackColor):
		return 0, 0, 0, 255
	}

	red := uint8(gbColor >> 24)
	return red, red, red, 255
}
