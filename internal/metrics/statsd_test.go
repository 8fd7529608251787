package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsdShipsPrefixedMetrics(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	s := NewStatsd(StatsdConfig{
		Addr:          conn.LocalAddr().String(),
		NodeName:      "d1",
		Prefix:        "dispatcher.",
		FlushInterval: 10 * time.Millisecond,
	}, zerolog.Nop())
	s.Gauge(PoolSize, 3)
	require.NoError(t, s.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "dispatcher."+PoolSize)
}
