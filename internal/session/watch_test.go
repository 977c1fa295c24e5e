package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_RebuildsNewFile(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t)
	writeFile(t, root, ".pyxis/config.json", `{"refresh_delay_ms": 1000}`+"\n")
	s := initialized(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- s.Watch(ctx) }()

	// Let the watcher arm its directory watches before writing.
	time.Sleep(500 * time.Millisecond)
	writeFile(t, root, "sale/invoice.py", "class SaleInvoice:\n    pass\n")

	deadline := time.Now().Add(10 * time.Second)
	for {
		res, err := s.WorkspaceSymbols(context.Background(), "SaleInvoice", 0)
		require.NoError(t, err)
		if len(res) > 0 {
			assert.Equal(t, "SaleInvoice", res[0].Name)
			assert.Equal(t, "class", res[0].Kind)
			break
		}
		require.True(t, time.Now().Before(deadline), "rebuild never picked up the new file")
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	// The run loop races its watcher goroutine on shutdown; either a
	// clean exit or the cancellation error is fine.
	if err := <-watchDone; err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestWatch_ManifestChangeRequestsRestart(t *testing.T) {
	t.Parallel()

	root := writeWorkspace(t)
	s := initialized(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() { watchDone <- s.Watch(ctx) }()

	time.Sleep(500 * time.Millisecond)
	writeFile(t, root, "sale/__manifest__.py", "{'depends': ['base'], 'auto_install': True}\n")

	select {
	case err := <-watchDone:
		assert.ErrorIs(t, err, ErrRestart)
	case <-time.After(10 * time.Second):
		t.Fatal("restart signal never arrived")
	}
}
