// Package perf 提供吞吐量基准测试协议
//
// 协议为 libp2p 流协议：发起方打开流，先写入 8 字节大端
// uint64（期望下载的字节数），随后发送上传负载并半关闭流；
// 响应方读完上传负载后按头部要求写回下载负载并关闭流。
// 耗时由发起方端到端计量。
package perf

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolID 吞吐量基准测试协议标识
const ProtocolID protocol.ID = "/perf/1.0.0"

// RunParams 单次基准测试的参数
//
// 两个字段均允许为 0；双 0 的运行合法，仅测量连接建立开销。
type RunParams struct {
	// ToSend 上传字节数
	ToSend uint64

	// ToReceive 下载字节数
	ToReceive uint64
}

// RunOutcome 一次完成的基准测试结果
//
// 吞吐量只在报告时派生，从不存储。
type RunOutcome struct {
	// Params 本次运行的参数
	Params RunParams

	// Elapsed 端到端耗时
	Elapsed time.Duration
}

// Throughput 派生吞吐量（字节/秒）
//
// 计算方式: (ToSend + ToReceive) / Elapsed。
func (o RunOutcome) Throughput() float64 {
	if o.Elapsed <= 0 {
		return 0
	}
	return float64(o.Params.ToSend+o.Params.ToReceive) / o.Elapsed.Seconds()
}

// String 人类可读的结果报告
func (o RunOutcome) String() string {
	return fmt.Sprintf("sent %s, received %s in %.3fs (%s/s)",
		humanize.Bytes(o.Params.ToSend),
		humanize.Bytes(o.Params.ToReceive),
		o.Elapsed.Seconds(),
		humanize.Bytes(uint64(o.Throughput())),
	)
}
