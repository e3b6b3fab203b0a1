// Package config 提供命令行工具的配置加载
//
// 优先级：命令行参数 > 环境变量 > 配置文件 > 默认值。
// 环境变量统一使用 P2PBENCH_ 前缀。
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gpauloski/libp2p-playground/internal/engine"
	"github.com/gpauloski/libp2p-playground/internal/session"
)

// ============================================================================
//                              环境变量
// ============================================================================

// EnvPrefix 所有环境变量的公共前缀
const EnvPrefix = "P2PBENCH_"

// 支持的环境变量（均使用 P2PBENCH_ 前缀）
const (
	EnvMode           = "MODE"
	EnvSeed           = "SEED"
	EnvRelay          = "RELAY"
	EnvTransport      = "TRANSPORT"
	EnvPeer           = "PEER"
	EnvUploadBytes    = "UPLOAD_BYTES"
	EnvDownloadBytes  = "DOWNLOAD_BYTES"
	EnvUpgradeTimeout = "UPGRADE_TIMEOUT"
)

// ============================================================================
//                              配置
// ============================================================================

// Config 基准测试客户端配置
type Config struct {
	// Mode 角色选择器：dial（发起方）或 listen（响应方）
	Mode string `json:"mode"`

	// Seed 身份种子（0-255）
	Seed int `json:"seed"`

	// Relay 中继地址（含 /p2p 组件的 multiaddr）
	Relay string `json:"relay"`

	// Transport 传输类型：tcp 或 quic-v1
	Transport string `json:"transport"`

	// Peer 响应方 PeerID（仅 dial 模式需要）
	Peer string `json:"peer"`

	// UploadBytes 上传字节数
	UploadBytes uint64 `json:"upload_bytes"`

	// DownloadBytes 下载字节数
	DownloadBytes uint64 `json:"download_bytes"`

	// UpgradeTimeout 直连升级等待预算（Go duration 字符串，"0" 表示不超时）
	UpgradeTimeout string `json:"upgrade_timeout"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Transport:      string(engine.TransportTCP),
		UploadBytes:    1_000_000,
		DownloadBytes:  1_000_000,
		UpgradeTimeout: session.DefaultUpgradeTimeout.String(),
	}
}

// LoadFile 从 JSON 文件加载配置（以默认值为底）
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPrefix + EnvMode); v != "" {
		c.Mode = v
	}
	if v := os.Getenv(EnvPrefix + EnvSeed); v != "" {
		if seed, err := strconv.Atoi(v); err == nil {
			c.Seed = seed
		}
	}
	if v := os.Getenv(EnvPrefix + EnvRelay); v != "" {
		c.Relay = v
	}
	if v := os.Getenv(EnvPrefix + EnvTransport); v != "" {
		c.Transport = v
	}
	if v := os.Getenv(EnvPrefix + EnvPeer); v != "" {
		c.Peer = v
	}
	if v := os.Getenv(EnvPrefix + EnvUploadBytes); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.UploadBytes = n
		}
	}
	if v := os.Getenv(EnvPrefix + EnvDownloadBytes); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.DownloadBytes = n
		}
	}
	if v := os.Getenv(EnvPrefix + EnvUpgradeTimeout); v != "" {
		c.UpgradeTimeout = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if _, err := session.ParseRole(c.Mode); err != nil {
		return err
	}
	if c.Seed < 0 || c.Seed > 255 {
		return fmt.Errorf("seed %d out of range [0, 255]", c.Seed)
	}
	if c.Relay == "" {
		return errors.New("relay address is required")
	}
	if _, err := engine.ParseTransportKind(c.Transport); err != nil {
		return fmt.Errorf("transport %q: %w", c.Transport, err)
	}
	if c.Mode == "dial" && c.Peer == "" {
		return errors.New("peer id is required in dial mode")
	}
	if _, err := c.UpgradeTimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// UpgradeTimeoutDuration 解析升级等待预算
func (c *Config) UpgradeTimeoutDuration() (time.Duration, error) {
	if c.UpgradeTimeout == "" {
		return session.DefaultUpgradeTimeout, nil
	}
	d, err := time.ParseDuration(c.UpgradeTimeout)
	if err != nil {
		return 0, fmt.Errorf("upgrade timeout %q: %w", c.UpgradeTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("upgrade timeout %q is negative", c.UpgradeTimeout)
	}
	return d, nil
}
