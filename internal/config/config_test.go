package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pvtclawn/swarm-verifier/internal/scoring"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"server":{"address":":9090"}}`), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("监听地址不符: %s", cfg.Server.Address)
	}
	if cfg.Storage.Verifications.Driver != "memory" || cfg.Queue.Driver != "memory" {
		t.Fatalf("默认驱动不符: %+v", cfg)
	}
	if cfg.Queue.Workers != 4 || cfg.Verifier.MaxRetries != 3 {
		t.Fatalf("默认参数不符: %+v", cfg)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("数据目录不符: %s", cfg.Runtime.DataDir)
	}
}

func TestLoadWithoutPolicyLeavesItNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Verifier.Policy != nil {
		t.Fatalf("未配置策略时应保持 nil: %+v", cfg.Verifier.Policy)
	}
}

func TestLoadFillsPartialPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{"verifier":{"policy":{"genuine_threshold":80,"cv_bands":[{"x":0.2,"score":100},{"x":1.0,"score":0}]}}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	policy := cfg.Verifier.Policy
	if policy == nil {
		t.Fatal("策略未解析")
	}
	if policy.GenuineThreshold != 80 {
		t.Fatalf("判定阈值未覆盖: %d", policy.GenuineThreshold)
	}
	if len(policy.CVBands) != 2 || policy.CVBands[0].X != 0.2 {
		t.Fatalf("CV 曲线未覆盖: %+v", policy.CVBands)
	}

	defaults := scoring.DefaultPolicy()
	if len(policy.TimeBands) != len(defaults.TimeBands) {
		t.Fatalf("时延曲线应回落默认: %+v", policy.TimeBands)
	}
	if policy.SuspiciousThreshold != defaults.SuspiciousThreshold {
		t.Fatalf("可疑阈值应回落默认: %d", policy.SuspiciousThreshold)
	}
	if policy.NeutralScore != defaults.NeutralScore {
		t.Fatalf("中性分应回落默认: %v", policy.NeutralScore)
	}
	if policy.LengthWeight != defaults.LengthWeight || policy.OverlapWeight != defaults.OverlapWeight {
		t.Fatalf("一致性权重应回落默认: %v/%v", policy.LengthWeight, policy.OverlapWeight)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("空路径应返回错误")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("不存在的文件应返回错误")
	}
}
