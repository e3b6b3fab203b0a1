package perf

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeStream 内存双工流，模拟 libp2p 流的半关闭语义
type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

var _ Stream = (*pipeStream)(nil)

func (p *pipeStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeStream) CloseWrite() error           { return p.w.Close() }

func (p *pipeStream) Close() error {
	_ = p.w.Close()
	return p.r.Close()
}

// newStreamPair 创建互连的流对
func newStreamPair() (*pipeStream, *pipeStream) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeStream{r: ar, w: aw}, &pipeStream{r: br, w: bw}
}

// TestRunClientServe 客户端/服务端完整一次运行
func TestRunClientServe(t *testing.T) {
	client, server := newStreamPair()

	type serveResult struct {
		sent     uint64
		received uint64
		err      error
	}
	serveCh := make(chan serveResult, 1)
	go func() {
		sent, received, err := ServeRun(server)
		serveCh <- serveResult{sent, received, err}
	}()

	params := RunParams{ToSend: 128 << 10, ToReceive: 64 << 10}
	outcome, err := RunClient(client, params)
	require.NoError(t, err)
	require.Equal(t, params, outcome.Params)
	require.Greater(t, outcome.Elapsed, time.Duration(0))

	res := <-serveCh
	require.NoError(t, res.err)
	assert.Equal(t, params.ToReceive, res.sent, "server sent = client download")
	assert.Equal(t, params.ToSend, res.received, "server received = client upload")
}

// TestRunClientServe_ZeroRun 双 0 运行合法，仅测连接开销
func TestRunClientServe_ZeroRun(t *testing.T) {
	client, server := newStreamPair()

	go func() {
		_, _, _ = ServeRun(server)
	}()

	outcome, err := RunClient(client, RunParams{})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), outcome.Params.ToSend)
	assert.Equal(t, uint64(0), outcome.Params.ToReceive)
}

// TestRunClient_ShortDownload 服务端提前关闭 ⇒ ErrShortDownload
func TestRunClient_ShortDownload(t *testing.T) {
	client, server := newStreamPair()

	go func() {
		var header [8]byte
		_, _ = io.ReadFull(server, header[:])
		_, _ = io.Copy(io.Discard, server)
		// 只回写一半
		_, _ = server.Write(make([]byte, 10))
		_ = server.CloseWrite()
	}()

	_, err := RunClient(client, RunParams{ToReceive: 20})
	require.ErrorIs(t, err, ErrShortDownload)
}

// TestThroughput 吞吐量 = (上传+下载)/耗时
func TestThroughput(t *testing.T) {
	outcome := RunOutcome{
		Params:  RunParams{ToSend: 1_000_000, ToReceive: 1_000_000},
		Elapsed: 2 * time.Second,
	}
	assert.InDelta(t, 1_000_000, outcome.Throughput(), 0.0001)
}

// TestThroughput_ZeroElapsed 非法耗时不产生 Inf
func TestThroughput_ZeroElapsed(t *testing.T) {
	outcome := RunOutcome{Params: RunParams{ToSend: 1}}
	assert.Equal(t, float64(0), outcome.Throughput())
}

// TestRunOutcome_String 报告包含人类可读的速率
func TestRunOutcome_String(t *testing.T) {
	outcome := RunOutcome{
		Params:  RunParams{ToSend: 1_000_000, ToReceive: 1_000_000},
		Elapsed: 2 * time.Second,
	}
	s := outcome.String()
	assert.Contains(t, s, "1.0 MB")
	assert.Contains(t, s, "/s")
}
