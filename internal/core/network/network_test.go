package network

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPubSubFanOut(t *testing.T) {
	ps := NewMemoryPubSub()
	a, cancelA, err := ps.Subscribe("flow.events")
	require.NoError(t, err)
	b, cancelB, err := ps.Subscribe("flow.events")
	require.NoError(t, err)
	defer cancelB()

	payload := []byte(`{"type":"INPUT_PUBLISH"}`)
	require.NoError(t, ps.Publish("flow.events", payload))
	payload[0] = 'X'

	for _, ch := range []<-chan Message{a, b} {
		select {
		case msg := <-ch:
			assert.Equal(t, "flow.events", msg.Topic)
			assert.Equal(t, `{"type":"INPUT_PUBLISH"}`, string(msg.Payload))
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open, "cancel closes the channel")
}

func TestMemoryPubSubDropsWhenFull(t *testing.T) {
	ps := NewMemoryPubSubSize(1)
	_, cancel, err := ps.Subscribe("t")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish("t", []byte("1")))
	require.NoError(t, ps.Publish("t", []byte("2")))
	assert.Equal(t, 1, ps.Dropped("t"))
	assert.Zero(t, ps.Dropped("other"))
}

func TestParseMultiaddrs(t *testing.T) {
	addrs, err := ParseMultiaddrs([]string{"/ip4/127.0.0.1/tcp/4001", ""})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", addrs[0].String())

	_, err = ParseMultiaddrs([]string{"not-an-addr"})
	assert.Error(t, err)
}

func TestIdentityKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "identity.key")
	k1, err := loadIdentity(path)
	require.NoError(t, err)
	k2, err := loadIdentity(path)
	require.NoError(t, err)
	assert.True(t, k1.Equals(k2))

	bad := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o600))
	_, err = loadIdentity(bad)
	assert.Error(t, err)
}

func TestMemoryPubSubPeers(t *testing.T) {
	ps := NewMemoryPubSubSize(1)
	_, cancel, err := ps.Subscribe("flow.events")
	require.NoError(t, err)
	defer cancel()
	require.NoError(t, ps.Publish("flow.events", []byte("1")))
	require.NoError(t, ps.Publish("flow.events", []byte("2")))

	snap := ps.Peers()
	assert.Equal(t, "local", snap.PeerID)
	assert.Empty(t, snap.Peers)
	assert.Equal(t, map[string]int{"flow.events": 1}, snap.Mesh)
	assert.Equal(t, map[string]int{"flow.events": 1}, snap.Dropped)
}

func TestLibp2pBootstrapAndPeers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts libp2p hosts")
	}
	ctx := context.Background()
	loopback := []string{"/ip4/127.0.0.1/tcp/0"}

	a, err := NewLibp2pPubSub(ctx, Libp2pOptions{ListenAddrs: loopback})
	require.NoError(t, err)
	defer a.Close()
	self := a.Peers()
	require.NotEmpty(t, self.ListenAddrs)
	assert.Contains(t, self.ListenAddrs[0], "/p2p/"+self.PeerID)

	b, err := NewLibp2pPubSub(ctx, Libp2pOptions{ListenAddrs: loopback, Bootstrap: self.ListenAddrs[:1]})
	require.NoError(t, err)
	defer b.Close()

	_, cancel, err := b.Subscribe("flow.events")
	require.NoError(t, err)
	defer cancel()

	var ids []string
	for _, p := range b.Peers().Peers {
		ids = append(ids, p.ID)
	}
	assert.Contains(t, ids, self.PeerID)
	_, joined := b.Peers().Mesh["flow.events"]
	assert.True(t, joined)

	_, err = NewLibp2pPubSub(ctx, Libp2pOptions{Bootstrap: []string{"nope"}})
	assert.Error(t, err)
}
