// Package main 提供打洞吞吐量基准测试客户端
//
// 两台无法直连的机器各跑一个实例，经同一个中继会合后尝试
// 直连升级，成功后跑一次吞吐量基准测试。
//
// 响应方（先启动，记下打印的 PeerID）:
//
//	holepunch-bench -mode listen -seed 1 \
//	    -relay /ip4/203.0.113.1/tcp/4001/p2p/<relay-peer-id>
//
// 发起方:
//
//	holepunch-bench -mode dial -seed 2 \
//	    -relay /ip4/203.0.113.1/tcp/4001/p2p/<relay-peer-id> \
//	    -peer <responder-peer-id> \
//	    -upload-bytes 10000000 -download-bytes 10000000
//
// 任一致命条件（协议违例、拨号失败、预留被拒、升级失败、运行
// 失败）都会立即以非零码退出；重试由操作者重新调用完成。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/gpauloski/libp2p-playground/internal/config"
	"github.com/gpauloski/libp2p-playground/internal/engine"
	"github.com/gpauloski/libp2p-playground/internal/identity"
	"github.com/gpauloski/libp2p-playground/internal/perf"
	"github.com/gpauloski/libp2p-playground/internal/session"
)

// version 工具版本
const version = "0.1.0"

var (
	mode           = flag.String("mode", "", "角色: dial（发起方）或 listen（响应方）")
	seed           = flag.Int("seed", 0, "身份种子（0-255，相同种子产生相同 PeerID）")
	relay          = flag.String("relay", "", "中继地址（含 /p2p 组件的 multiaddr）")
	transport      = flag.String("transport", "", "传输类型: tcp 或 quic-v1")
	peerID         = flag.String("peer", "", "响应方 PeerID（仅 dial 模式）")
	uploadBytes    = flag.Uint64("upload-bytes", 0, "上传字节数")
	downloadBytes  = flag.Uint64("download-bytes", 0, "下载字节数")
	upgradeTimeout = flag.String("upgrade-timeout", "", "直连升级等待预算（如 90s；0 表示不超时）")
	configFile     = flag.String("config", "", "JSON 配置文件路径")
	showVersion    = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("holepunch-bench %s\n", version)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	role, err := session.ParseRole(cfg.Mode)
	if err != nil {
		return err
	}

	id, err := identity.FromSeed(uint8(cfg.Seed))
	if err != nil {
		return fmt.Errorf("derive identity: %w", err)
	}

	relayAddr, err := ma.NewMultiaddr(cfg.Relay)
	if err != nil {
		return fmt.Errorf("relay address: %w", err)
	}

	kind, err := engine.ParseTransportKind(cfg.Transport)
	if err != nil {
		return err
	}

	var target peer.ID
	if role == session.RoleInitiator {
		if target, err = peer.Decode(cfg.Peer); err != nil {
			return fmt.Errorf("peer id: %w", err)
		}
	}

	timeout, err := cfg.UpgradeTimeoutDuration()
	if err != nil {
		return err
	}

	eng, err := engine.NewLibP2P(engine.Config{
		Identity:  id,
		ServeRuns: role == session.RoleResponder,
	})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	printSessionInfo(role, id, cfg)

	sess, err := session.New(eng, session.Params{
		Role:       role,
		RelayAddr:  relayAddr,
		TargetPeer: target,
		Transports: []engine.TransportKind{kind},
		Run: perf.RunParams{
			ToSend:    cfg.UploadBytes,
			ToReceive: cfg.DownloadBytes,
		},
		UpgradeTimeout: timeout,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := sess.Run(ctx)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

// loadConfig 合并配置：命令行参数 > 环境变量 > 配置文件 > 默认值
func loadConfig() (config.Config, error) {
	cfg := config.Default()

	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	cfg.ApplyEnv()

	// 只覆盖显式设置过的命令行参数
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "seed":
			cfg.Seed = *seed
		case "relay":
			cfg.Relay = *relay
		case "transport":
			cfg.Transport = *transport
		case "peer":
			cfg.Peer = *peerID
		case "upload-bytes":
			cfg.UploadBytes = *uploadBytes
		case "download-bytes":
			cfg.DownloadBytes = *downloadBytes
		case "upgrade-timeout":
			cfg.UpgradeTimeout = *upgradeTimeout
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// printSessionInfo 打印会话信息
func printSessionInfo(role session.Role, id *identity.Identity, cfg config.Config) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("Hole-Punch Throughput Benchmark")
	fmt.Printf("  角色:      %s\n", role)
	fmt.Printf("  PeerID:    %s\n", id.PeerID())
	fmt.Printf("  中继:      %s\n", cfg.Relay)
	fmt.Printf("  传输:      %s\n", cfg.Transport)
	if role == session.RoleInitiator {
		fmt.Printf("  上传/下载: %d / %d 字节\n", cfg.UploadBytes, cfg.DownloadBytes)
	} else {
		fmt.Println()
		fmt.Println("  发起方需要此 PeerID，通过 -peer 传入。")
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// printResult 打印终态结果
func printResult(result *session.Result) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	switch {
	case result.Outcome != nil:
		fmt.Printf("基准测试完成: %s\n", result.Outcome)
	case result.Served != nil:
		fmt.Printf("基准测试已服务: 回送 %d 字节, 接收 %d 字节\n",
			result.Served.Sent, result.Served.Received)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}
