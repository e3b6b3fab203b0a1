package engine

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// CircuitAddr 构造中继线路地址：「经由中继 relay 到达 target」
//
// 不变量: 结果同时携带中继自身地址与目标节点身份。
func CircuitAddr(relay ma.Multiaddr, target peer.ID) (ma.Multiaddr, error) {
	if _, err := relay.ValueForProtocol(ma.P_P2P); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPeerComponent, relay)
	}

	suffix, err := ma.NewMultiaddr("/p2p-circuit/p2p/" + target.String())
	if err != nil {
		return nil, fmt.Errorf("build circuit suffix: %w", err)
	}
	return relay.Encapsulate(suffix), nil
}
