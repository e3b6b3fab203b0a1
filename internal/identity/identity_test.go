package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFromSeed_Deterministic 相同种子 ⇒ 逐位相同的身份
func TestFromSeed_Deterministic(t *testing.T) {
	for _, seed := range []uint8{0, 1, 42, 255} {
		a, err := FromSeed(seed)
		require.NoError(t, err)
		b, err := FromSeed(seed)
		require.NoError(t, err)

		require.Equal(t, a.PeerID(), b.PeerID(), "seed %d", seed)
		require.True(t, a.PrivKey().Equals(b.PrivKey()), "seed %d", seed)
	}
}

// TestFromSeed_DistinctSeeds 不同种子产生不同身份
func TestFromSeed_DistinctSeeds(t *testing.T) {
	seen := make(map[string]uint8)
	for seed := 0; seed < 256; seed++ {
		id, err := FromSeed(uint8(seed))
		require.NoError(t, err)

		key := id.PeerID().String()
		prev, dup := seen[key]
		require.False(t, dup, "seed %d collides with seed %d", seed, prev)
		seen[key] = uint8(seed)
	}
}

// TestFromSeed_PeerIDStable PeerID 重复读取稳定
func TestFromSeed_PeerIDStable(t *testing.T) {
	id, err := FromSeed(7)
	require.NoError(t, err)
	require.Equal(t, id.PeerID(), id.PeerID())
	require.NotEmpty(t, id.PeerID().String())
}
