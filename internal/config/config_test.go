package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPeer = "12D3KooWDpJ7As7BWAwRMfu1VU2WCqNjvq387JEYKDBj4kx6nXTN"

// validConfig 一份可通过校验的配置
func validConfig() Config {
	cfg := Default()
	cfg.Mode = "listen"
	cfg.Seed = 42
	cfg.Relay = "/ip4/203.0.113.1/tcp/4001/p2p/" + validPeer
	return cfg
}

// TestDefault 默认值
func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, uint64(1_000_000), cfg.UploadBytes)
	assert.Equal(t, uint64(1_000_000), cfg.DownloadBytes)

	d, err := cfg.UpgradeTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

// TestLoadFile 配置文件覆盖默认值
func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.json")
	data := `{"mode":"dial","seed":7,"transport":"quic-v1","upload_bytes":500}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dial", cfg.Mode)
	assert.Equal(t, 7, cfg.Seed)
	assert.Equal(t, "quic-v1", cfg.Transport)
	assert.Equal(t, uint64(500), cfg.UploadBytes)
	// 未出现的字段保持默认
	assert.Equal(t, uint64(1_000_000), cfg.DownloadBytes)
}

// TestLoadFile_Missing 缺失文件返回错误
func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

// TestApplyEnv 环境变量覆盖
func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPrefix+EnvMode, "dial")
	t.Setenv(EnvPrefix+EnvSeed, "9")
	t.Setenv(EnvPrefix+EnvDownloadBytes, "2048")
	t.Setenv(EnvPrefix+EnvUpgradeTimeout, "45s")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "dial", cfg.Mode)
	assert.Equal(t, 9, cfg.Seed)
	assert.Equal(t, uint64(2048), cfg.DownloadBytes)

	d, err := cfg.UpgradeTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

// TestValidate 校验规则
func TestValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	bad := validConfig()
	bad.Mode = "serve"
	assert.Error(t, bad.Validate(), "unknown mode")

	bad = validConfig()
	bad.Seed = 256
	assert.Error(t, bad.Validate(), "seed out of range")

	bad = validConfig()
	bad.Relay = ""
	assert.Error(t, bad.Validate(), "missing relay")

	bad = validConfig()
	bad.Transport = "udp"
	assert.Error(t, bad.Validate(), "unknown transport")

	bad = validConfig()
	bad.Mode = "dial"
	assert.Error(t, bad.Validate(), "dial mode requires peer")

	bad = validConfig()
	bad.Mode = "dial"
	bad.Peer = validPeer
	assert.NoError(t, bad.Validate())

	bad = validConfig()
	bad.UpgradeTimeout = "soon"
	assert.Error(t, bad.Validate(), "bad duration")
}
