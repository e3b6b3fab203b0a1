// Package session 提供基准测试会话的编排核心
//
// 一次会话严格顺序地经过以下阶段：
//
//	Bootstrapping → LearningAddress → Rendezvousing →
//	AwaitingUpgrade → Benchmarking → Done
//
// 编排循环单线程地从引擎事件流取事件，交给当前阶段的纯 step
// 函数，执行其返回的副作用。除等待下一个事件（及定时器）外，
// 核心没有任何阻塞点，也没有跨阶段重试：任何致命条件直接
// 终止会话，由操作者重新调用。
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/gpauloski/libp2p-playground/internal/engine"
	"github.com/gpauloski/libp2p-playground/internal/perf"
	"github.com/gpauloski/libp2p-playground/internal/util/logger"
)

var log = logger.Logger("session")

const (
	// DefaultSettleWindow 监听引导安定窗口
	DefaultSettleWindow = time.Second

	// DefaultUpgradeTimeout 直连升级等待预算
	//
	// 参考实现从不超时：升级事件双双缺席时会话永久挂起。这里
	// 改为显式预算，设 0 可恢复「只信引擎自己的超时」的行为。
	DefaultUpgradeTimeout = 2 * time.Minute
)

// ============================================================================
//                              角色与参数
// ============================================================================

// Role 会话角色，整个会话生命周期内固定
type Role int

const (
	// RoleInitiator 发起方：拨中继线路地址并驱动基准测试
	RoleInitiator Role = iota
	// RoleResponder 响应方：持有中继预留并被动服务基准测试
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

// ErrUnknownRole 未知的角色选择器
var ErrUnknownRole = errors.New("unknown role")

// ParseRole 解析命令行角色选择器（dial ⇒ 发起方，listen ⇒ 响应方）
func ParseRole(s string) (Role, error) {
	switch s {
	case "dial":
		return RoleInitiator, nil
	case "listen":
		return RoleResponder, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected dial or listen)", ErrUnknownRole, s)
	}
}

// Params 一次会话的参数
type Params struct {
	// Role 会话角色
	Role Role

	// RelayAddr 中继地址（须含 /p2p 组件）
	RelayAddr ma.Multiaddr

	// TargetPeer 响应方的 PeerID（仅发起方需要）
	TargetPeer peer.ID

	// Transports 监听的传输类型
	Transports []engine.TransportKind

	// Run 基准测试运行参数
	Run perf.RunParams

	// SettleWindow 监听引导安定窗口（0 ⇒ DefaultSettleWindow）
	SettleWindow time.Duration

	// UpgradeTimeout 直连升级等待预算（0 ⇒ 不超时）
	UpgradeTimeout time.Duration

	// Clock 时钟源（nil ⇒ 真实时钟；测试注入 mock）
	Clock clock.Clock
}

// validate 检查参数并填默认值
func (p *Params) validate() error {
	if p.RelayAddr == nil {
		return errors.New("relay address is required")
	}
	if p.Role == RoleInitiator && p.TargetPeer == "" {
		return errors.New("target peer is required for the initiator role")
	}
	if len(p.Transports) == 0 {
		p.Transports = []engine.TransportKind{engine.TransportTCP}
	}
	if p.SettleWindow == 0 {
		p.SettleWindow = DefaultSettleWindow
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	return nil
}

// ============================================================================
//                              结果
// ============================================================================

// ServedStats 响应方侧的服务统计（权威测量在发起方）
type ServedStats struct {
	Sent     uint64
	Received uint64
}

// Result 会话终态结果
type Result struct {
	// Role 产生此结果的角色
	Role Role

	// Outcome 测量结果（仅发起方非 nil）
	Outcome *perf.RunOutcome

	// Served 服务统计（仅响应方非 nil）
	Served *ServedStats
}

// ============================================================================
//                              会话编排
// ============================================================================

// Session 一次基准测试会话
//
// 独占持有引擎：会话存续期间没有其他组件访问引擎。
type Session struct {
	id     string
	params Params
	eng    engine.Engine
	clk    clock.Clock
}

// New 创建会话
func New(eng engine.Engine, params Params) (*Session, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("session params: %w", err)
	}
	return &Session{
		id:     uuid.NewString(),
		params: params,
		eng:    eng,
		clk:    params.Clock,
	}, nil
}

// Run 驱动会话到终态
//
// 返回终态结果，或第一个致命错误。没有跨阶段重试。
func (s *Session) Run(ctx context.Context) (*Result, error) {
	log.Info("session starting",
		"session", s.id,
		"role", s.params.Role,
		"relay", s.params.RelayAddr,
		"local", s.eng.LocalPeer())

	m := machine{role: s.params.Role}
	st := phaseState{kind: phaseBootstrapping}

	for _, kind := range s.params.Transports {
		if err := s.eng.Listen(kind); err != nil {
			return nil, fmt.Errorf("bootstrap listen: %w", err)
		}
	}

	// 引导阶段：安定窗口定时器与监听地址事件竞速，定时器到点
	// 即继续（接口枚举通常更快，定时器是预期的胜者）。
	settle := s.clk.Timer(s.params.SettleWindow)
	defer settle.Stop()

	for st.kind == phaseBootstrapping {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-settle.C:
			st.kind = phaseLearningAddress
			log.Info("phase transition", "session", s.id, "phase", st.kind)
			// 拨号中继恰好一次：为了学到外部地址，也让新启动的
			// 中继学到它自己的公网地址。
			if err := s.eng.Dial(s.params.RelayAddr); err != nil {
				return nil, fmt.Errorf("dial relay: %w", err)
			}

		case ev := <-s.eng.Events():
			next, effs, err := m.step(st, ev)
			if err != nil {
				return nil, err
			}
			if err := s.applyAll(next, effs); err != nil {
				return nil, err
			}
			st = next
		}
	}

	// 主循环：一次一个事件，按到达顺序
	var upgradeDeadline <-chan time.Time
	var upgradeTimer *clock.Timer

	for {
		if st.kind == phaseDone {
			return st.result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-upgradeDeadline:
			return nil, fmt.Errorf("%w after %s", ErrUpgradeTimeout, s.params.UpgradeTimeout)

		case ev := <-s.eng.Events():
			log.Debug("event", "session", s.id, "phase", st.kind, "event", ev.String())

			next, effs, err := m.step(st, ev)
			if err != nil {
				return nil, err
			}
			if err := s.applyAll(next, effs); err != nil {
				return nil, err
			}

			if next.kind != st.kind {
				log.Info("phase transition", "session", s.id, "phase", next.kind)

				// 升级等待预算随阶段进出布防/撤防
				if next.kind == phaseAwaitingUpgrade && s.params.UpgradeTimeout > 0 {
					upgradeTimer = s.clk.Timer(s.params.UpgradeTimeout)
					upgradeDeadline = upgradeTimer.C
				} else if upgradeTimer != nil {
					upgradeTimer.Stop()
					upgradeTimer = nil
					upgradeDeadline = nil
				}
			}
			st = next
		}
	}
}

// applyAll 依次执行 step 返回的副作用
//
// 副作用从事件处理中同步发出，互不重叠。
func (s *Session) applyAll(st phaseState, effs []effect) error {
	for _, eff := range effs {
		if err := s.apply(st, eff); err != nil {
			return err
		}
	}
	return nil
}

// apply 执行单个副作用
func (s *Session) apply(st phaseState, eff effect) error {
	switch eff {
	case effAdvertise:
		s.eng.AddExternalAddress(st.exchange.learned)
		return nil

	case effDialCircuit:
		addr, err := engine.CircuitAddr(s.params.RelayAddr, s.params.TargetPeer)
		if err != nil {
			return fmt.Errorf("build circuit address: %w", err)
		}
		log.Info("dialing relay circuit", "session", s.id, "addr", addr)
		return s.eng.Dial(addr)

	case effReserve:
		log.Info("requesting relay reservation", "session", s.id, "relay", s.params.RelayAddr)
		return s.eng.Reserve(s.params.RelayAddr)

	case effStartRun:
		s.eng.StartRun(s.params.TargetPeer, s.params.Run)
		return nil

	default:
		return fmt.Errorf("unknown effect %d", eff)
	}
}
