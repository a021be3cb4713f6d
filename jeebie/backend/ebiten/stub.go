//go:build !ebiten

package ebiten

import (
	"fmt"

	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/input/action"
	"github.com/valerio/go-jeebie/jeebie/video"
)

// Backend stub for when ebiten support is not compiled in.
type Backend struct{}

// New creates a stub ebiten backend that returns an error on Init.
func New() *Backend {
	return &Backend{}
}

// Init returns an error indicating the ebiten backend is not available.
func (b *Backend) Init(config backend.BackendConfig) error {
	return fmt.Errorf("ebiten backend not available - build with -tags ebiten to enable")
}

// Update returns an error.
func (b *Backend) Update(frame *video.FrameBuffer) ([]backend.InputEvent, error) {
	return nil, fmt.Errorf("ebiten backend not available")
}

// Cleanup does nothing.
func (b *Backend) Cleanup() error {
	return nil
}

// HandleBackendAction does nothing; the real implementation requires the
// ebiten build tag.
func (b *Backend) HandleBackendAction(act action.Action) {
	// No-op
}
