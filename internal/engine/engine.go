// Package engine 定义对等网络引擎契约
//
// 引擎对外提供两类能力：
//   - 命令式操作：listen / dial / reserve / run
//   - 单一串行化事件流：所有异步结果按到达顺序投递
//
// 核心编排逻辑只消费此契约，从不触碰线上字节；具体的传输、
// 中继线路协议与打洞协议由引擎实现承担。
package engine

import (
	"errors"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/gpauloski/libp2p-playground/internal/perf"
)

// ============================================================================
//                              传输类型
// ============================================================================

// TransportKind 传输类型选择
type TransportKind string

const (
	// TransportTCP TCP 传输
	TransportTCP TransportKind = "tcp"
	// TransportQUIC QUIC v1 传输
	TransportQUIC TransportKind = "quic-v1"
)

// ErrUnknownTransport 未知的传输类型
var ErrUnknownTransport = errors.New("unknown transport kind")

// ParseTransportKind 解析传输类型选择器
func ParseTransportKind(s string) (TransportKind, error) {
	switch TransportKind(s) {
	case TransportTCP:
		return TransportTCP, nil
	case TransportQUIC:
		return TransportQUIC, nil
	default:
		return "", ErrUnknownTransport
	}
}

// ListenAddr 返回此传输在所有接口上的监听地址
func (k TransportKind) ListenAddr() string {
	if k == TransportQUIC {
		return "/ip4/0.0.0.0/udp/0/quic-v1"
	}
	return "/ip4/0.0.0.0/tcp/0"
}

// ============================================================================
//                              引擎契约
// ============================================================================

// Engine 对等网络引擎
//
// 所有命令从事件处理中同步发出且互不重叠；异步结果一律通过
// Events 通道投递，一次一个事件，按到达顺序。
type Engine interface {
	// LocalPeer 返回本地节点的 PeerID
	LocalPeer() peer.ID

	// Events 返回串行化事件流
	Events() <-chan Event

	// Listen 在所有本地接口上监听指定传输
	Listen(kind TransportKind) error

	// Dial 拨号指定地址（须含 /p2p 组件；结果经事件流返回）
	Dial(addr ma.Multiaddr) error

	// Reserve 向中继请求预留（结果经事件流返回）
	Reserve(relay ma.Multiaddr) error

	// AddExternalAddress 记录并开始对外通告学到的外部地址
	AddExternalAddress(addr ma.Multiaddr)

	// StartRun 对指定节点发起一次基准测试运行（仅发起方调用）
	StartRun(p peer.ID, params perf.RunParams)

	// Close 释放引擎资源
	Close() error
}
