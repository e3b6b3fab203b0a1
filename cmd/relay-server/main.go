// Package main 提供独立的中继服务器
//
// 中继服务器帮助 NAT 后的节点会合：双方都连到它之后，经
// 中继电路交换打洞所需的信息，成功升级后流量不再经过它。
//
// 使用方法:
//
//	go run main.go -port 4001 -seed 0
//
// 使用固定种子可以保证重启后 PeerID 不变，客户端的
// -relay 参数无需更新。
//
// 参考: go-libp2p examples/relay
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	relayv2 "github.com/libp2p/go-libp2p/p2p/protocol/circuitv2/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gpauloski/libp2p-playground/internal/identity"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 解析命令行参数
	port := flag.Int("port", 4001, "监听端口（TCP 与 QUIC 共用）")
	seed := flag.Int("seed", 0, "身份种子（0-255，固定种子保证 PeerID 稳定）")
	maxReservations := flag.Int("max-reservations", 128, "最大预留数")
	unlimited := flag.Bool("unlimited", false, "取消中继流量与时长限制")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus 指标监听地址（如 :9090，空表示禁用）")
	flag.Parse()

	if *seed < 0 || *seed > 255 {
		return fmt.Errorf("seed %d out of range [0, 255]", *seed)
	}

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            Hole-Punch Relay Server                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获中断信号
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\n收到信号 %v，正在关闭...\n", sig)
		cancel()
	}()

	id, err := identity.FromSeed(uint8(*seed))
	if err != nil {
		return fmt.Errorf("derive identity: %w", err)
	}

	reg := prometheus.NewRegistry()

	h, err := libp2p.New(
		libp2p.Identity(id.PrivKey()),
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", *port),
			fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", *port),
		),
		libp2p.PrometheusRegisterer(reg),
	)
	if err != nil {
		return fmt.Errorf("启动中继服务器失败: %w", err)
	}
	defer func() { _ = h.Close() }()

	// 启动中继服务
	rc := relayv2.DefaultResources()
	rc.MaxReservations = *maxReservations

	relayOpts := []relayv2.Option{relayv2.WithResources(rc)}
	if *unlimited {
		relayOpts = append(relayOpts, relayv2.WithInfiniteLimits())
	}

	svc, err := relayv2.New(h, relayOpts...)
	if err != nil {
		return fmt.Errorf("启动中继服务失败: %w", err)
	}
	defer func() { _ = svc.Close() }()

	if *metricsAddr != "" {
		startMetrics(ctx, reg, h, *metricsAddr)
	}

	printServerInfo(h, *maxReservations, *unlimited)

	// 启动统计报告
	go reportStats(ctx, h)

	<-ctx.Done()

	fmt.Println("\n正在关闭中继服务器...")
	return nil
}

// startMetrics 暴露 Prometheus 指标端点
func startMetrics(ctx context.Context, reg *prometheus.Registry, h host.Host, addr string) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "relay_connected_peers",
			Help: "Number of peers currently connected to the relay.",
		},
		func() float64 { return float64(len(h.Network().Peers())) },
	))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Prometheus 指标: http://%s/metrics\n\n", addr)
}

// printServerInfo 打印服务器信息
func printServerInfo(h host.Host, maxReservations int, unlimited bool) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    服务器信息                         ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ 节点 ID: %s\n", h.ID())
	fmt.Println("║")
	fmt.Println("║ 监听地址:")
	for _, addr := range h.Network().ListenAddresses() {
		fmt.Printf("║   • %s\n", addr)
	}
	fmt.Println("║")
	fmt.Printf("║ 最大预留数: %d\n", maxReservations)
	if unlimited {
		fmt.Println("║ 流量限制:   无")
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	fmt.Println("客户端可以使用以下地址作为 -relay 参数:")
	for _, addr := range h.Network().ListenAddresses() {
		fmt.Printf("  %s/p2p/%s\n", addr, h.ID())
	}
	fmt.Println()

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("中继服务器已启动，等待客户端连接...")
	fmt.Println("按 Ctrl+C 停止服务器")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, h host.Host) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("[Stats] 当前连接节点数: %d\n", len(h.Network().Peers()))
		}
	}
}
