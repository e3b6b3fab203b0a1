package engine

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/gpauloski/libp2p-playground/internal/perf"
)

// Event 引擎事件（密封联合）
//
// 每个阶段的状态机对完整事件集做全覆盖分派；不在本文件中的
// 类型不可能出现在事件流里。
type Event interface {
	fmt.Stringer

	// event 密封标记
	event()
}

// EvtNewListenAddr 新的本地监听地址
type EvtNewListenAddr struct {
	Addr ma.Multiaddr
}

// EvtDialing 出站拨号进行中
type EvtDialing struct {
	Peer peer.ID
}

// EvtConnectionEstablished 连接建立（入站或出站）
type EvtConnectionEstablished struct {
	Peer peer.ID
	Addr ma.Multiaddr

	// Relayed 该连接经由中继线路
	Relayed bool
}

// EvtOutgoingConnectionError 出站连接失败
type EvtOutgoingConnectionError struct {
	Peer peer.ID
	Err  error
}

// EvtObservedAddressSent 已向对端（中继）送出本端的地址信息
type EvtObservedAddressSent struct {
	Peer peer.ID
}

// EvtObservedAddress 对端（中继）告知的本端外部观测地址
type EvtObservedAddress struct {
	Addr ma.Multiaddr
}

// EvtReservationAccepted 中继接受了预留请求
type EvtReservationAccepted struct {
	Relay peer.ID
}

// EvtReservationError 预留请求失败
type EvtReservationError struct {
	Err error
}

// EvtHolePunchSucceeded 直连升级成功，后续流量透明走直连路径
type EvtHolePunchSucceeded struct {
	Peer peer.ID
}

// EvtHolePunchFailed 直连升级失败
type EvtHolePunchFailed struct {
	Peer peer.ID
	Err  error
}

// EvtHeartbeat 保活心跳（各阶段均可忽略）
type EvtHeartbeat struct {
	Peer peer.ID
	RTT  time.Duration
}

// EvtRunCompleted 基准测试运行完成（发起方侧，含测量结果）
type EvtRunCompleted struct {
	Outcome perf.RunOutcome
}

// EvtRunFailed 基准测试运行失败（发起方侧）
type EvtRunFailed struct {
	Err error
}

// EvtRunServed 基准测试运行完成（响应方侧，权威测量在发起方）
type EvtRunServed struct {
	Peer     peer.ID
	Sent     uint64
	Received uint64
}

func (EvtNewListenAddr) event()            {}
func (EvtDialing) event()                  {}
func (EvtConnectionEstablished) event()    {}
func (EvtOutgoingConnectionError) event()  {}
func (EvtObservedAddressSent) event()      {}
func (EvtObservedAddress) event()          {}
func (EvtReservationAccepted) event()      {}
func (EvtReservationError) event()         {}
func (EvtHolePunchSucceeded) event()       {}
func (EvtHolePunchFailed) event()          {}
func (EvtHeartbeat) event()                {}
func (EvtRunCompleted) event()             {}
func (EvtRunFailed) event()                {}
func (EvtRunServed) event()                {}

func (e EvtNewListenAddr) String() string {
	return fmt.Sprintf("NewListenAddr{%s}", e.Addr)
}

func (e EvtDialing) String() string {
	return fmt.Sprintf("Dialing{%s}", e.Peer)
}

func (e EvtConnectionEstablished) String() string {
	return fmt.Sprintf("ConnectionEstablished{peer=%s, addr=%s, relayed=%t}", e.Peer, e.Addr, e.Relayed)
}

func (e EvtOutgoingConnectionError) String() string {
	return fmt.Sprintf("OutgoingConnectionError{peer=%s, err=%v}", e.Peer, e.Err)
}

func (e EvtObservedAddressSent) String() string {
	return fmt.Sprintf("ObservedAddressSent{%s}", e.Peer)
}

func (e EvtObservedAddress) String() string {
	return fmt.Sprintf("ObservedAddress{%s}", e.Addr)
}

func (e EvtReservationAccepted) String() string {
	return fmt.Sprintf("ReservationAccepted{%s}", e.Relay)
}

func (e EvtReservationError) String() string {
	return fmt.Sprintf("ReservationError{%v}", e.Err)
}

func (e EvtHolePunchSucceeded) String() string {
	return fmt.Sprintf("HolePunchSucceeded{%s}", e.Peer)
}

func (e EvtHolePunchFailed) String() string {
	return fmt.Sprintf("HolePunchFailed{peer=%s, err=%v}", e.Peer, e.Err)
}

func (e EvtHeartbeat) String() string {
	return fmt.Sprintf("Heartbeat{peer=%s, rtt=%s}", e.Peer, e.RTT)
}

func (e EvtRunCompleted) String() string {
	return fmt.Sprintf("RunCompleted{%s}", e.Outcome)
}

func (e EvtRunFailed) String() string {
	return fmt.Sprintf("RunFailed{%v}", e.Err)
}

func (e EvtRunServed) String() string {
	return fmt.Sprintf("RunServed{peer=%s, sent=%d, received=%d}", e.Peer, e.Sent, e.Received)
}
