package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	circuitclient "github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/client"
	"github.com/libp2p/go-libp2p/p2p/protocol/holepunch"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/gpauloski/libp2p-playground/internal/identity"
	"github.com/gpauloski/libp2p-playground/internal/perf"
	"github.com/gpauloski/libp2p-playground/internal/util/logger"
)

var log = logger.Logger("engine")

const (
	// eventBufferSize 事件通道缓冲
	eventBufferSize = 64

	// dialTimeout 单次拨号超时
	dialTimeout = 30 * time.Second

	// heartbeatInterval 保活心跳间隔
	heartbeatInterval = 15 * time.Second
)

// ErrMissingPeerComponent 地址缺少 /p2p 组件
var ErrMissingPeerComponent = errors.New("address is missing /p2p component")

// Config LibP2P 引擎配置
type Config struct {
	// Identity 本地节点身份
	Identity *identity.Identity

	// ServeRuns 注册基准测试服务端处理器（响应方角色）
	ServeRuns bool
}

// LibP2P 基于 go-libp2p 的引擎实现
//
// go-libp2p 内部是多工作协程的，这里把连接通知、事件总线、
// 打洞追踪器与各命令协程的结果汇入单一通道，对编排层呈现
// 「一次一个事件、按到达顺序」的串行视图。
type LibP2P struct {
	host   host.Host
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	idSub event.Subscription

	mu       sync.Mutex
	external []ma.Multiaddr
	pinging  map[peer.ID]struct{}
}

var _ Engine = (*LibP2P)(nil)

// NewLibP2P 创建 LibP2P 引擎
func NewLibP2P(cfg Config) (*LibP2P, error) {
	if cfg.Identity == nil {
		return nil, errors.New("engine: identity is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &LibP2P{
		events:  make(chan Event, eventBufferSize),
		ctx:     ctx,
		cancel:  cancel,
		pinging: make(map[peer.ID]struct{}),
	}

	h, err := libp2p.New(
		libp2p.Identity(cfg.Identity.PrivKey()),
		libp2p.NoListenAddrs,
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.EnableRelay(),
		libp2p.EnableHolePunching(holepunch.WithTracer(&punchTracer{engine: e})),
		libp2p.AddrsFactory(e.appendExternal),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}
	e.host = h

	// 身份识别完成 ⇒ 地址学习握手的两个事件
	sub, err := h.EventBus().Subscribe(new(event.EvtPeerIdentificationCompleted))
	if err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("subscribe identify events: %w", err)
	}
	e.idSub = sub
	go e.forwardIdentifyEvents()

	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			addr := c.RemoteMultiaddr()
			e.emit(EvtConnectionEstablished{
				Peer:    c.RemotePeer(),
				Addr:    addr,
				Relayed: isRelayAddr(addr),
			})
			e.startHeartbeat(c.RemotePeer())
		},
	})

	if cfg.ServeRuns {
		h.SetStreamHandler(perf.ProtocolID, e.serveRun)
	}

	log.Info("engine ready", "peer", h.ID())
	return e, nil
}

// LocalPeer 返回本地 PeerID
func (e *LibP2P) LocalPeer() peer.ID {
	return e.host.ID()
}

// Events 返回串行化事件流
func (e *LibP2P) Events() <-chan Event {
	return e.events
}

// ListenAddresses 返回当前的本地监听地址（供命令行展示）
func (e *LibP2P) ListenAddresses() []ma.Multiaddr {
	return e.host.Network().ListenAddresses()
}

// Listen 在所有接口上监听指定传输
func (e *LibP2P) Listen(kind TransportKind) error {
	maddr, err := ma.NewMultiaddr(kind.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen addr for %s: %w", kind, err)
	}
	if err := e.host.Network().Listen(maddr); err != nil {
		return fmt.Errorf("listen on %s: %w", maddr, err)
	}

	for _, a := range e.host.Network().ListenAddresses() {
		e.emit(EvtNewListenAddr{Addr: a})
	}
	return nil
}

// Dial 异步拨号；结果通过事件流投递
func (e *LibP2P) Dial(addr ma.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingPeerComponent, addr)
	}

	go func() {
		e.emit(EvtDialing{Peer: info.ID})

		ctx, cancel := context.WithTimeout(e.ctx, dialTimeout)
		defer cancel()

		if err := e.host.Connect(ctx, *info); err != nil {
			e.emit(EvtOutgoingConnectionError{Peer: info.ID, Err: err})
		}
		// 成功路径由连接通知上报 ConnectionEstablished
	}()
	return nil
}

// Reserve 异步请求中继预留；结果通过事件流投递
func (e *LibP2P) Reserve(relay ma.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(relay)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingPeerComponent, relay)
	}

	go func() {
		rsv, err := circuitclient.Reserve(e.ctx, e.host, *info)
		if err != nil {
			e.emit(EvtReservationError{Err: err})
			return
		}
		log.Debug("reservation obtained", "relay", info.ID, "expires", rsv.Expiration)
		e.emit(EvtReservationAccepted{Relay: info.ID})
	}()
	return nil
}

// AddExternalAddress 记录外部地址并从此对外通告
func (e *LibP2P) AddExternalAddress(addr ma.Multiaddr) {
	e.mu.Lock()
	e.external = append(e.external, addr)
	e.mu.Unlock()
	log.Info("advertising external address", "addr", addr)
}

// StartRun 异步发起一次基准测试运行
func (e *LibP2P) StartRun(p peer.ID, params perf.RunParams) {
	go func() {
		runID := uuid.NewString()
		log.Info("benchmark run starting",
			"run", runID, "peer", p,
			"upload", params.ToSend, "download", params.ToReceive)

		s, err := e.host.NewStream(e.ctx, p, perf.ProtocolID)
		if err != nil {
			e.emit(EvtRunFailed{Err: fmt.Errorf("open perf stream: %w", err)})
			return
		}

		outcome, err := perf.RunClient(s, params)
		_ = s.Close()
		if err != nil {
			e.emit(EvtRunFailed{Err: err})
			return
		}
		log.Info("benchmark run finished", "run", runID)
		e.emit(EvtRunCompleted{Outcome: outcome})
	}()
}

// Close 释放引擎资源
func (e *LibP2P) Close() error {
	e.cancel()

	var err error
	if e.idSub != nil {
		err = multierr.Append(err, e.idSub.Close())
	}
	err = multierr.Append(err, e.host.Close())
	return err
}

// ============================================================================
//                              事件汇聚
// ============================================================================

// emit 投递一个事件；引擎关闭后静默丢弃
func (e *LibP2P) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// forwardIdentifyEvents 把身份识别完成转成地址学习握手事件
//
// 身份识别在每条新连接上双向进行：本端识别对端完成时，对端
// 也已在同一连接上拉取过本端的地址信息，因此这里同时产生
// 「已送出」与「已学到」两个事件；二者在通道上独立到达，
// 顺序不作保证。
func (e *LibP2P) forwardIdentifyEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case evt, ok := <-e.idSub.Out():
			if !ok {
				return
			}
			id := evt.(event.EvtPeerIdentificationCompleted)
			e.emit(EvtObservedAddressSent{Peer: id.Peer})
			if id.ObservedAddr != nil {
				e.emit(EvtObservedAddress{Addr: id.ObservedAddr})
			}
		}
	}
}

// serveRun 基准测试服务端处理器
func (e *LibP2P) serveRun(s network.Stream) {
	peerID := s.Conn().RemotePeer()
	sent, received, err := perf.ServeRun(s)
	if err != nil {
		log.Warn("benchmark serve failed", "peer", peerID, "err", err)
		_ = s.Reset()
		return
	}
	_ = s.Close()
	e.emit(EvtRunServed{Peer: peerID, Sent: sent, Received: received})
}

// startHeartbeat 对新连接的对端启动保活心跳
func (e *LibP2P) startHeartbeat(p peer.ID) {
	e.mu.Lock()
	if _, ok := e.pinging[p]; ok {
		e.mu.Unlock()
		return
	}
	e.pinging[p] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.pinging, p)
			e.mu.Unlock()
		}()

		results := ping.Ping(e.ctx, e.host, p)
		for {
			select {
			case <-e.ctx.Done():
				return
			case res, ok := <-results:
				if !ok || res.Error != nil {
					return
				}
				e.emit(EvtHeartbeat{Peer: p, RTT: res.RTT})
			}

			select {
			case <-e.ctx.Done():
				return
			case <-time.After(heartbeatInterval):
			}
		}
	}()
}

// appendExternal 地址工厂：在通告地址中追加学到的外部地址
func (e *LibP2P) appendExternal(addrs []ma.Multiaddr) []ma.Multiaddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(addrs, e.external...)
}

// isRelayAddr 地址携带中继线路标记
func isRelayAddr(addr ma.Multiaddr) bool {
	if addr == nil {
		return false
	}
	_, err := addr.ValueForProtocol(ma.P_CIRCUIT)
	return err == nil
}

// ============================================================================
//                              打洞追踪器
// ============================================================================

// punchTracer 把 dcutr 打洞服务的结束事件转成引擎事件
type punchTracer struct {
	engine *LibP2P
}

var _ holepunch.EventTracer = (*punchTracer)(nil)

func (t *punchTracer) Trace(evt *holepunch.Event) {
	switch e := evt.Evt.(type) {
	case *holepunch.EndHolePunchEvt:
		if e.Success {
			t.engine.emit(EvtHolePunchSucceeded{Peer: evt.Remote})
		} else {
			t.engine.emit(EvtHolePunchFailed{Peer: evt.Remote, Err: errors.New(e.Error)})
		}
	case *holepunch.DirectDialEvt:
		// 直接回拨成功时无需打洞，同样视为升级成功
		if e.Success {
			t.engine.emit(EvtHolePunchSucceeded{Peer: evt.Remote})
		}
	default:
		// 开始/尝试/协议错误事件仅用于调试
		log.Debug("hole punch event", "peer", evt.Remote, "type", evt.Type)
	}
}
