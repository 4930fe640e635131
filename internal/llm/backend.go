// Package llm 封装文本生成后端，以及超时、重试、熔断与带校验的生成。
package llm

import (
	"context"
	"strings"
)

// Backend 文本生成后端，失败统一表现为 GENERATION_FAILED
type Backend interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
	Model() string
}

// BackendFunc 便于用函数实现 Backend
type BackendFunc func(ctx context.Context, prompt string, temperature float32) (string, error)

func (f BackendFunc) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	return f(ctx, prompt, temperature)
}

func (f BackendFunc) Model() string { return "func" }

// StripCodeFences 去掉模型回答外层的 Markdown 代码块标记
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// 首行是语言标记
		if !strings.ContainsAny(s[:i], " {[\"") {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
