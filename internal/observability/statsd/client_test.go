package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUDPListener(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, conn.LocalAddr().String()
}

func readLine(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestClient_EmitsStatsdLines(t *testing.T) {
	listener, addr := newUDPListener(t)

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    addr,
		Prefix:     "reportgen.",
		GlobalTags: map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.True(t, client.Enabled())

	client.Count("job.transition", 1, map[string]string{"result": "success"})
	assert.Equal(t, "reportgen.job.transition:1|c|#env:test,result:success", readLine(t, listener))

	client.Gauge("queue.depth", 12.5, nil)
	assert.Equal(t, "reportgen.queue.depth:12.5|g|#env:test", readLine(t, listener))

	client.Timing("job.duration", 1500*time.Millisecond, nil)
	assert.Equal(t, "reportgen.job.duration:1500|ms|#env:test", readLine(t, listener))
}

func TestClient_DefaultsToServiceNamespace(t *testing.T) {
	listener, addr := newUDPListener(t)

	client, err := NewClient(Config{Enabled: true, Address: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	client.Count("job.transition", 1, nil)
	assert.Equal(t, "reportgen.job.transition:1|c", readLine(t, listener))
}

func TestClient_DisabledIsSilent(t *testing.T) {
	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:8125"})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// No connection, no panic.
	client.Count("anything", 1, nil)
	require.NoError(t, client.Close())
}

func TestClient_NilReceiverIsSafe(t *testing.T) {
	var client *Client
	assert.False(t, client.Enabled())
	client.Count("x", 1, nil)
	client.Gauge("x", 1, nil)
	client.Timing("x", time.Second, nil)
	assert.NoError(t, client.Close())
}

func TestNormalizeMetricName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"job.duration", "job.duration"},
		{"  job.duration  ", "job.duration"},
		{"report generation/total", "report_generation_total"},
		{".leading.and.trailing.", "leading.and.trailing"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeMetricName(tt.in), "input %q", tt.in)
	}
}

func TestFormatTags(t *testing.T) {
	assert.Empty(t, formatTags(nil, nil))
	assert.Equal(t, "|#a:1,b:2", formatTags(map[string]string{"b": "2"}, map[string]string{"a": "1"}))
	// Local tags override globals with the same key.
	assert.Equal(t, "|#env:local", formatTags(map[string]string{"env": "global"}, map[string]string{"env": "local"}))
	// Blank keys are dropped.
	assert.Empty(t, formatTags(map[string]string{" ": "x"}, nil))
}
