package perf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// blockSize 收发数据的块大小
const blockSize = 64 << 10

// 协议错误
var (
	// ErrShortDownload 下载负载在达到请求字节数前结束
	ErrShortDownload = errors.New("download ended before requested bytes")
	// ErrTrailingData 下载负载之后仍有数据
	ErrTrailingData = errors.New("unexpected data after download payload")
)

// Stream 基准测试运行所需的最小流接口
//
// libp2p 的 network.Stream 满足此接口；测试中用内存管道替代。
type Stream interface {
	io.Reader
	io.Writer
	io.Closer

	// CloseWrite 半关闭：本端写完，对端读到 EOF
	CloseWrite() error
}

// RunClient 以发起方身份执行一次基准测试运行
//
// 返回的 RunOutcome 包含端到端耗时（从写入头部到读完下载负载）。
func RunClient(s Stream, params RunParams) (RunOutcome, error) {
	start := time.Now()

	var header [8]byte
	binary.BigEndian.PutUint64(header[:], params.ToReceive)
	if _, err := s.Write(header[:]); err != nil {
		return RunOutcome{}, fmt.Errorf("write header: %w", err)
	}

	if err := sendPayload(s, params.ToSend); err != nil {
		return RunOutcome{}, fmt.Errorf("upload: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return RunOutcome{}, fmt.Errorf("close write: %w", err)
	}

	if err := drainExactly(s, params.ToReceive); err != nil {
		return RunOutcome{}, fmt.Errorf("download: %w", err)
	}

	return RunOutcome{Params: params, Elapsed: time.Since(start)}, nil
}

// ServeRun 以响应方身份服务一次基准测试运行
//
// 返回实际回写与读取的字节数（不含 8 字节头部）。
func ServeRun(s Stream) (sent, received uint64, err error) {
	var header [8]byte
	if _, err := io.ReadFull(s, header[:]); err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	toSend := binary.BigEndian.Uint64(header[:])

	n, err := io.Copy(io.Discard, s)
	if err != nil {
		return 0, uint64(n), fmt.Errorf("drain upload: %w", err)
	}

	if err := sendPayload(s, toSend); err != nil {
		return 0, uint64(n), fmt.Errorf("send download: %w", err)
	}
	if err := s.CloseWrite(); err != nil {
		return toSend, uint64(n), fmt.Errorf("close write: %w", err)
	}

	return toSend, uint64(n), nil
}

// sendPayload 按块写入 n 字节负载
func sendPayload(w io.Writer, n uint64) error {
	buf := make([]byte, blockSize)
	for n > 0 {
		chunk := uint64(len(buf))
		if n < chunk {
			chunk = n
		}
		if _, err := w.Write(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// drainExactly 精确读取 n 字节并确认随后即是 EOF
func drainExactly(r io.Reader, n uint64) error {
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrShortDownload
		}
		return err
	}

	var one [1]byte
	switch _, err := r.Read(one[:]); {
	case err == nil:
		return ErrTrailingData
	case errors.Is(err, io.EOF):
		return nil
	default:
		return err
	}
}
