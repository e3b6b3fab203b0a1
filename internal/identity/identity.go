// Package identity 提供基准测试节点的确定性身份
//
// 身份由一个 8 位种子派生：种子写入 32 字节零缓冲区的首字节，
// 作为 Ed25519 私钥种子。相同种子永远产生相同的密钥对和 PeerID，
// 便于在两端复现基准测试身份。
package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Identity 节点身份（不可变，进程生命周期内唯一）
type Identity struct {
	priv   crypto.PrivKey
	peerID peer.ID
}

// FromSeed 从种子派生身份
//
// 不变量: 相同种子 ⇒ 逐位相同的密钥与 PeerID。
func FromSeed(seed uint8) (*Identity, error) {
	var buf [ed25519.SeedSize]byte
	buf[0] = seed

	key := ed25519.NewKeyFromSeed(buf[:])

	priv, err := crypto.UnmarshalEd25519PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unmarshal ed25519 key: %w", err)
	}

	peerID, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}

	return &Identity{priv: priv, peerID: peerID}, nil
}

// PrivKey 返回私钥
func (id *Identity) PrivKey() crypto.PrivKey {
	return id.priv
}

// PeerID 返回派生的 PeerID
func (id *Identity) PeerID() peer.ID {
	return id.peerID
}
