package engine

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpauloski/libp2p-playground/internal/identity"
)

// TestParseTransportKind 传输类型选择器解析
func TestParseTransportKind(t *testing.T) {
	cases := []struct {
		in      string
		want    TransportKind
		wantErr bool
	}{
		{in: "tcp", want: TransportTCP},
		{in: "quic-v1", want: TransportQUIC},
		{in: "quic", wantErr: true},
		{in: "", wantErr: true},
		{in: "udp", wantErr: true},
	}

	for _, c := range cases {
		got, err := ParseTransportKind(c.in)
		if c.wantErr {
			assert.ErrorIs(t, err, ErrUnknownTransport, "input %q", c.in)
			continue
		}
		require.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, got)
	}
}

// TestTransportKind_ListenAddr 监听地址覆盖所有接口
func TestTransportKind_ListenAddr(t *testing.T) {
	assert.Equal(t, "/ip4/0.0.0.0/tcp/0", TransportTCP.ListenAddr())
	assert.Equal(t, "/ip4/0.0.0.0/udp/0/quic-v1", TransportQUIC.ListenAddr())
}

// TestCircuitAddr 线路地址同时携带中继地址与目标身份
func TestCircuitAddr(t *testing.T) {
	relayID, err := identity.FromSeed(1)
	require.NoError(t, err)
	targetID, err := identity.FromSeed(2)
	require.NoError(t, err)

	relay := ma.StringCast("/ip4/203.0.113.5/tcp/4001/p2p/" + relayID.PeerID().String())

	addr, err := CircuitAddr(relay, targetID.PeerID())
	require.NoError(t, err)

	assert.True(t, isRelayAddr(addr))
	assert.Contains(t, addr.String(), relayID.PeerID().String())
	assert.Contains(t, addr.String(), targetID.PeerID().String())
}

// TestCircuitAddr_MissingRelayPeer 无 /p2p 组件的中继地址被拒绝
func TestCircuitAddr_MissingRelayPeer(t *testing.T) {
	targetID, err := identity.FromSeed(2)
	require.NoError(t, err)

	relay := ma.StringCast("/ip4/203.0.113.5/tcp/4001")

	_, err = CircuitAddr(relay, targetID.PeerID())
	assert.ErrorIs(t, err, ErrMissingPeerComponent)
}

// TestIsRelayAddr 中继线路标记识别
func TestIsRelayAddr(t *testing.T) {
	assert.False(t, isRelayAddr(nil))
	assert.False(t, isRelayAddr(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.True(t, isRelayAddr(ma.StringCast("/p2p-circuit")))
}
