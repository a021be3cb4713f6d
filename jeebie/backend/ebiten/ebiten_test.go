package ebiten_test

import (
	"testing"

	"github.com/valerio/go-jeebie/jeebie/backend"
	"github.com/valerio/go-jeebie/jeebie/backend/ebiten"
)

// TestEbitenImplementsBackend is a compile-time check that ebiten.Backend
// implements backend.Backend. With the ebiten build tag absent, this
// exercises the stub; with -tags ebiten, the real implementation.
func TestEbitenImplementsBackend(t *testing.T) {
	var _ backend.Backend = (*ebiten.Backend)(nil)
}

func TestStubInitReturnsError(t *testing.T) {
	b := ebiten.New()
	err := b.Init(backend.BackendConfig{Title: "test"})
	if err == nil {
		t.Skip("ebiten backend is compiled in; stub-specific assertion does not apply")
	}
}
