package consul

import (
	"strconv"

	"github.com/aihub/classroom-rag/internal/config"
	"go.uber.org/zap"
)

// ApplyTunables 用 Consul KV 中的值覆盖可热更新的检索与生成参数
//
// 读取 {prefix}/retrieval/top_k、{prefix}/generation/temperature、
// {prefix}/generation/model 与 {prefix}/generation/validator_attempts，
// 无效值忽略并保留原配置。
func ApplyTunables(client *Client, prefix string, cfg *config.Config, logger *zap.Logger) {
	if !client.IsEnabled() {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	get := func(key string) (string, bool) {
		v, ok, err := client.GetKV(prefix + key)
		if err != nil {
			logger.Debug("failed to read Consul key", zap.String("key", prefix+key), zap.Error(err))
			return "", false
		}
		return v, ok
	}

	if v, ok := get("/retrieval/top_k"); ok {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Retrieval.TopK = k
		}
	}
	if v, ok := get("/generation/temperature"); ok {
		if t, err := strconv.ParseFloat(v, 64); err == nil && t >= 0 && t <= 2 {
			cfg.Generation.Temperature = t
		}
	}
	if v, ok := get("/generation/model"); ok && v != "" {
		cfg.Generation.Model = v
	}
	if v, ok := get("/generation/validator_attempts"); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Generation.ValidatorAttempts = n
		}
	}
}
