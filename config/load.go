package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ============================================================================
//                              环境变量
// ============================================================================

// EnvPrefix 环境变量前缀
const EnvPrefix = "CONNSTATE_"

// 环境变量名称（不含前缀）
const (
	EnvBaseURL      = "BASE_URL"
	EnvHealthPath   = "HEALTH_PATH"
	EnvProbeTimeout = "PROBE_TIMEOUT"
	EnvDNSResolver  = "DNS_RESOLVER"
	EnvAPIEnabled   = "API_ENABLED"
	EnvAPIAddr      = "API_ADDR"
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LOG_FORMAT"
)

// ============================================================================
//                              文件加载
// ============================================================================

// Load 从文件加载配置
//
// 按扩展名选择格式：.yaml/.yml 使用 YAML，其余按 JSON 解析。
// 文件中未出现的字段保留默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := NewConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	default:
		err = decodeJSON(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// ApplyEnv 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// 无法解析的值被忽略并返回描述性错误，已成功应用的覆盖保留。
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	var errs []string

	if v, ok := get(EnvBaseURL); ok {
		cfg.Server.BaseURL = v
	}
	if v, ok := get(EnvHealthPath); ok {
		cfg.Server.HealthPath = v
	}
	if v, ok := get(EnvProbeTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, EnvProbeTimeout, err))
		} else {
			cfg.Server.ProbeTimeout = Duration(d)
		}
	}
	if v, ok := lookup(EnvPrefix + EnvDNSResolver); ok {
		// 显式设置为空字符串表示禁用 DNS 检查
		cfg.Device.DNSResolver = strings.TrimSpace(v)
	}
	if v, ok := get(EnvAPIEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, EnvAPIEnabled, err))
		} else {
			cfg.API.Enabled = b
		}
	}
	if v, ok := get(EnvAPIAddr); ok {
		cfg.API.Addr = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v, ok := get(EnvLogFormat); ok {
		cfg.Log.Format = strings.ToLower(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}
