package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sutra-db/sutra/internal/clustermeta"
)

func TestRestartBackoffDoublesAndCaps(t *testing.T) {
	require.Equal(t, time.Second, restartBackoff(0))
	require.Equal(t, 2*time.Second, restartBackoff(1))
	require.Equal(t, 4*time.Second, restartBackoff(2))
	require.Equal(t, restartMaxDelay, restartBackoff(20))
}

func TestProcessPlatformStatusUntrackedIsStopped(t *testing.T) {
	p := NewProcessPlatform("")
	status, err := p.Status("no-such-node", 0)
	require.NoError(t, err)
	require.Equal(t, clustermeta.NodeStopped, status)
}

func TestProcessPlatformStopUntrackedIsNotFound(t *testing.T) {
	p := NewProcessPlatform("")
	err := p.Stop("no-such-node", 0)
	require.Error(t, err)
}

func TestUnimplementedPlatformsReturnErrors(t *testing.T) {
	for _, kind := range []clustermeta.Platform{clustermeta.PlatformContainer, clustermeta.PlatformPod} {
		p := unimplementedPlatform{kind: kind}
		_, err := p.Start(clustermeta.SpawnNodeRequest{})
		require.Error(t, err)
		require.Error(t, p.Stop("n", 0))
		_, err = p.Status("n", 0)
		require.Error(t, err)
	}
}
