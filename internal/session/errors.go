package session

import (
	"errors"
	"fmt"

	"github.com/gpauloski/libp2p-playground/internal/engine"
)

// ============================================================================
//                              错误定义
// ============================================================================

// 会话致命错误。本工具没有本地可恢复的错误类别：任何失败都
// 终止会话，由操作者重新调用。
var (
	// ErrProtocolViolation 当前阶段收到了不在预期集合内的事件
	ErrProtocolViolation = errors.New("unexpected engine event for current phase")
	// ErrReservationRejected 中继拒绝预留请求
	ErrReservationRejected = errors.New("relay rejected reservation request")
	// ErrDialFailed 出站连接失败
	ErrDialFailed = errors.New("outgoing connection failed")
	// ErrHolePunchFailed 直连升级失败（不退回中继路径跑基准）
	ErrHolePunchFailed = errors.New("direct connection upgrade failed")
	// ErrUpgradeTimeout 直连升级在预算时间内未出结果
	ErrUpgradeTimeout = errors.New("direct connection upgrade timed out")
	// ErrRunFailed 基准测试运行失败
	ErrRunFailed = errors.New("benchmark run failed")
	// ErrRunNotIssued 运行完成事件先于运行发起到达（逻辑不变量被破坏）
	ErrRunNotIssued = errors.New("run completed before a run was issued")
)

// violation 构造协议违例错误
func violation(kind phaseKind, ev engine.Event) error {
	return fmt.Errorf("%w: %s during %s", ErrProtocolViolation, ev, kind)
}
