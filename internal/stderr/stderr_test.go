//go:build !windows

package stderr

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureDivertsFD2(t *testing.T) {
	c, err := Start()
	require.NoError(t, err)

	_, err = os.Stderr.WriteString("ALSA lib pcm.c: underrun\n\n")
	require.NoError(t, err)

	select {
	case line := <-c.Lines():
		assert.Equal(t, "ALSA lib pcm.c: underrun", line)
	case <-time.After(2 * time.Second):
		c.Stop()
		t.Fatal("no line captured")
	}

	c.Stop()
	c.Stop()
	_, open := <-c.Lines()
	assert.False(t, open)
}
