package session

import (
	"fmt"

	"github.com/gpauloski/libp2p-playground/internal/engine"
)

// ============================================================================
//                              阶段状态
// ============================================================================

// phaseKind 阶段标签
type phaseKind int

const (
	// phaseBootstrapping 监听引导：收集本地监听地址直到安定窗口结束
	phaseBootstrapping phaseKind = iota
	// phaseLearningAddress 地址学习：与中继完成两标志握手
	phaseLearningAddress
	// phaseRendezvousing 中继会合：响应方预留 / 发起方拨线路地址
	phaseRendezvousing
	// phaseAwaitingUpgrade 等待直连升级结果
	phaseAwaitingUpgrade
	// phaseBenchmarking 基准测试运行中
	phaseBenchmarking
	// phaseDone 终态
	phaseDone
)

func (k phaseKind) String() string {
	switch k {
	case phaseBootstrapping:
		return "Bootstrapping"
	case phaseLearningAddress:
		return "LearningAddress"
	case phaseRendezvousing:
		return "Rendezvousing"
	case phaseAwaitingUpgrade:
		return "AwaitingUpgrade"
	case phaseBenchmarking:
		return "Benchmarking"
	case phaseDone:
		return "Done"
	default:
		return fmt.Sprintf("phaseKind(%d)", int(k))
	}
}

// phaseState 带阶段标签的会话状态
//
// 每个阶段允许的事件集由对应的 step 函数强制；跨阶段共享的
// 散落布尔被收敛成按阶段归属的字段。
type phaseState struct {
	kind phaseKind

	// exchange 两标志握手进度（LearningAddress）
	exchange addrExchange

	// reserved 中继已接受预留（Rendezvousing，响应方）
	reserved bool

	// runIssued 本会话已发起过运行（Benchmarking，发起方）
	runIssued bool

	// result 终态结果（Done）
	result *Result
}

// ============================================================================
//                              副作用
// ============================================================================

// effect 由 step 函数返回、由编排循环执行的引擎命令
//
// step 函数本身是纯函数，从不直接触碰引擎。
type effect int

const (
	// effAdvertise 通告学到的外部地址（载荷在 exchange.learned）
	effAdvertise effect = iota
	// effDialCircuit 拨号响应方的中继线路地址（发起方）
	effDialCircuit
	// effReserve 向中继请求预留（响应方）
	effReserve
	// effStartRun 发起基准测试运行（发起方）
	effStartRun
)

// ============================================================================
//                              阶段转移
// ============================================================================

// machine 纯状态机：step = (state, event) -> (state, effects, error)
//
// 只读取会话参数，所有副作用经 effect 返回给编排循环。
type machine struct {
	role Role
}

// step 按当前阶段分派一个引擎事件
func (m machine) step(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch st.kind {
	case phaseBootstrapping:
		return m.stepBootstrapping(st, ev)
	case phaseLearningAddress:
		return m.stepLearningAddress(st, ev)
	case phaseRendezvousing:
		return m.stepRendezvousing(st, ev)
	case phaseAwaitingUpgrade:
		return m.stepAwaitingUpgrade(st, ev)
	case phaseBenchmarking:
		return m.stepBenchmarking(st, ev)
	default:
		return st, nil, violation(st.kind, ev)
	}
}

// stepBootstrapping 安定窗口内只接受监听地址通知
func (m machine) stepBootstrapping(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch ev := ev.(type) {
	case engine.EvtNewListenAddr:
		log.Info("listening", "addr", ev.Addr)
		return st, nil, nil
	default:
		return st, nil, violation(st.kind, ev)
	}
}

// stepLearningAddress 两标志握手：两个事件到齐（顺序不限）即完成
//
// 完成时恰好通告一次外部地址，并按角色发出会合命令。
func (m machine) stepLearningAddress(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch ev := ev.(type) {
	case engine.EvtObservedAddressSent:
		log.Info("told relay its observed address", "peer", ev.Peer)
		st.exchange = st.exchange.arriveTold()

	case engine.EvtObservedAddress:
		log.Info("relay observed our address", "addr", ev.Addr)
		st.exchange = st.exchange.arriveLearned(ev.Addr)

	case engine.EvtNewListenAddr, engine.EvtDialing,
		engine.EvtConnectionEstablished, engine.EvtHeartbeat:
		// 与握手无关，消费但忽略
		return st, nil, nil

	default:
		return st, nil, violation(st.kind, ev)
	}

	if !st.exchange.done() {
		return st, nil, nil
	}

	st.kind = phaseRendezvousing
	if m.role == RoleResponder {
		return st, []effect{effAdvertise, effReserve}, nil
	}
	return st, []effect{effAdvertise, effDialCircuit}, nil
}

// stepRendezvousing 响应方等待预留确认；发起方等待中继线路连接
func (m machine) stepRendezvousing(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch ev := ev.(type) {
	case engine.EvtReservationAccepted:
		if m.role != RoleResponder {
			return st, nil, violation(st.kind, ev)
		}
		log.Info("relay accepted our reservation", "relay", ev.Relay)
		st.reserved = true
		return st, nil, nil

	case engine.EvtReservationError:
		return st, nil, fmt.Errorf("%w: %v", ErrReservationRejected, ev.Err)

	case engine.EvtConnectionEstablished:
		log.Info("connection established", "peer", ev.Peer, "addr", ev.Addr, "relayed", ev.Relayed)
		if ev.Relayed && (m.role == RoleInitiator || st.reserved) {
			// 经中继的连接已确认，等待直连升级
			st.kind = phaseAwaitingUpgrade
		}
		return st, nil, nil

	case engine.EvtOutgoingConnectionError:
		return st, nil, fmt.Errorf("%w: peer %s: %v", ErrDialFailed, ev.Peer, ev.Err)

	case engine.EvtNewListenAddr, engine.EvtDialing, engine.EvtHeartbeat,
		engine.EvtObservedAddressSent, engine.EvtObservedAddress:
		return st, nil, nil

	default:
		return st, nil, violation(st.kind, ev)
	}
}

// stepAwaitingUpgrade 直连升级结果裁决
//
// 失败即致命：本工具测量的就是打洞后的连通性，不退回中继路径。
func (m machine) stepAwaitingUpgrade(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch ev := ev.(type) {
	case engine.EvtHolePunchSucceeded:
		log.Info("direct connection upgrade succeeded", "peer", ev.Peer)
		st.kind = phaseBenchmarking
		if m.role == RoleInitiator {
			st.runIssued = true
			return st, []effect{effStartRun}, nil
		}
		return st, nil, nil

	case engine.EvtHolePunchFailed:
		return st, nil, fmt.Errorf("%w: peer %s: %v", ErrHolePunchFailed, ev.Peer, ev.Err)

	case engine.EvtConnectionEstablished:
		// 升级成功前后引擎会建立新的直连
		log.Info("connection established", "peer", ev.Peer, "addr", ev.Addr, "relayed", ev.Relayed)
		return st, nil, nil

	case engine.EvtOutgoingConnectionError:
		// 升级期间的单次直拨失败不致命，裁决以升级结果事件为准
		log.Debug("dial attempt failed during upgrade", "peer", ev.Peer, "err", ev.Err)
		return st, nil, nil

	case engine.EvtNewListenAddr, engine.EvtDialing, engine.EvtHeartbeat,
		engine.EvtObservedAddressSent, engine.EvtObservedAddress:
		return st, nil, nil

	default:
		return st, nil, violation(st.kind, ev)
	}
}

// stepBenchmarking 发起方等待测量结果；响应方被动等待服务完成
func (m machine) stepBenchmarking(st phaseState, ev engine.Event) (phaseState, []effect, error) {
	switch ev := ev.(type) {
	case engine.EvtRunCompleted:
		if m.role != RoleInitiator {
			return st, nil, violation(st.kind, ev)
		}
		if !st.runIssued {
			return st, nil, ErrRunNotIssued
		}
		outcome := ev.Outcome
		st.kind = phaseDone
		st.result = &Result{Role: m.role, Outcome: &outcome}
		return st, nil, nil

	case engine.EvtRunFailed:
		if m.role != RoleInitiator {
			return st, nil, violation(st.kind, ev)
		}
		return st, nil, fmt.Errorf("%w: %v", ErrRunFailed, ev.Err)

	case engine.EvtRunServed:
		if m.role != RoleResponder {
			return st, nil, violation(st.kind, ev)
		}
		log.Info("benchmark run served", "peer", ev.Peer, "sent", ev.Sent, "received", ev.Received)
		st.kind = phaseDone
		st.result = &Result{Role: m.role, Served: &ServedStats{Sent: ev.Sent, Received: ev.Received}}
		return st, nil, nil

	case engine.EvtHolePunchSucceeded:
		// 触发条件重复出现：运行至多发起一次，重复触发忽略
		return st, nil, nil

	case engine.EvtNewListenAddr, engine.EvtDialing, engine.EvtHeartbeat,
		engine.EvtConnectionEstablished, engine.EvtObservedAddressSent,
		engine.EvtObservedAddress:
		return st, nil, nil

	default:
		return st, nil, violation(st.kind, ev)
	}
}
