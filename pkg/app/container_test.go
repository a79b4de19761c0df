package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/syncboard/syncboard/pkg/config"
)

func TestStopWithoutStartReturns(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace = t.TempDir()

	c, err := NewContainer(cfg)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a container that never started")
	}
}
