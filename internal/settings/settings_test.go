package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 100, cfg.MailboxCapacity)
	assert.Equal(t, 2*time.Second, cfg.CloseGrace)
	assert.Equal(t, 500, cfg.EventCapacity)
	assert.False(t, cfg.AgentEvents)
	assert.False(t, cfg.Trace)
	assert.Equal(t, 1.0, cfg.TraceRatio)
	assert.False(t, cfg.P2P.Enabled)
	assert.True(t, cfg.P2P.MDNS)
	assert.Equal(t, []string{"/ip4/0.0.0.0/tcp/0"}, cfg.P2P.Listen)
	assert.Empty(t, cfg.P2P.Bootstrap)
	assert.Equal(t, "flowgraph-events", cfg.P2P.Rendezvous)
	assert.Equal(t, "flowgraph.events", cfg.P2P.Topic)
}

func TestEnvironmentAndFlags(t *testing.T) {
	env := envOf(map[string]string{
		"FLOWGRAPH_ADDR":         ":9000",
		"FLOWGRAPH_MAILBOX":      "8",
		"FLOWGRAPH_AGENT_EVENTS": "true",
		"FLOWGRAPH_LOG_FORMAT":   "json",
		"FLOWGRAPH_P2P":          "1",
		"FLOWGRAPH_P2P_LISTEN":   "/ip4/127.0.0.1/tcp/4001, /ip4/127.0.0.1/udp/4001/quic-v1",
	})
	cfg, err := Load([]string{"-addr", ":9100", "-close-grace", "250ms", "-example", "math", "-trace-ratio", "0.1"}, env)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr, "flag wins over environment")
	assert.Equal(t, 8, cfg.MailboxCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.CloseGrace)
	assert.Equal(t, 0.1, cfg.TraceRatio)
	assert.True(t, cfg.AgentEvents)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "math", cfg.Example)
	assert.True(t, cfg.P2P.Enabled)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/4001", "/ip4/127.0.0.1/udp/4001/quic-v1"}, cfg.P2P.Listen)
}

func TestInvalid(t *testing.T) {
	cases := map[string]struct {
		args []string
		env  map[string]string
	}{
		"unknown flag":     {args: []string{"-nope"}},
		"zero mailbox":     {args: []string{"-mailbox", "0"}},
		"bad events":       {env: map[string]string{"FLOWGRAPH_EVENTS": "many"}},
		"bad bool":         {args: []string{"-trace", "maybe"}},
		"bad grace":        {args: []string{"-close-grace", "soon"}},
		"ratio above one":  {args: []string{"-trace-ratio", "1.5"}},
		"bad ratio":        {env: map[string]string{"FLOWGRAPH_TRACE_RATIO": "half"}},
		"negative grace":   {args: []string{"-close-grace", "-1s"}},
		"bad level":        {args: []string{"-log-level", "loud"}},
		"bad format":       {args: []string{"-log-format", "xml"}},
		"unknown example":  {args: []string{"-example", "tetris"}},
		"config + example": {args: []string{"-config", "a.txt", "-example", "math"}},
		"bad bootstrap":    {args: []string{"-p2p", "true", "-p2p-bootstrap", "not-an-addr"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(tc.args, envOf(tc.env))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestBootstrapIgnoredWhenP2PDisabled(t *testing.T) {
	cfg, err := Load([]string{"-p2p-bootstrap", "not-an-addr"}, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"not-an-addr"}, cfg.P2P.Bootstrap)
}
