package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/aihub/classroom-rag/internal/logger"
	"go.uber.org/zap"
)

// Validator 对生成结果做结构校验，返回的错误作为下一轮的修正提示
type Validator func(output string) error

// Rejection 记录一次被校验拒绝的输出
type Rejection struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
}

const feedbackHeader = "\n\nPREVIOUS OUTPUT WAS INVALID. Fix ALL rule violations:\n"

// GenerateWithValidator 生成后校验，失败时把拒绝原因追加到提示中重试，最多 attempts 次
//
// 后端错误直接返回，不计入校验重试；全部被拒绝时返回 GENERATION_FAILED 并附带每轮原因。
func GenerateWithValidator(ctx context.Context, b Backend, prompt string, temperature float32, attempts int, validate Validator) (string, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var rejections []Rejection
	current := prompt
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := b.Complete(ctx, current, temperature)
		if err != nil {
			return "", err
		}
		out = StripCodeFences(out)

		verr := validate(out)
		if verr == nil {
			return out, nil
		}
		rejections = append(rejections, Rejection{Attempt: attempt, Reason: verr.Error()})
		logger.Debug("generated output rejected",
			zap.String("model", b.Model()),
			zap.Int("attempt", attempt),
			zap.Error(verr))

		current = prompt + feedbackHeader + "- " + verr.Error()
	}

	return "", apperrors.NewGenerationFailed(
		fmt.Errorf("output rejected after %d attempts: %s", attempts, rejections[len(rejections)-1].Reason),
	).WithDetails(rejections)
}

// ParseTopicList 解析 JSON 字符串数组形式的主题列表
func ParseTopicList(output string) ([]string, error) {
	var topics []string
	if err := json.Unmarshal([]byte(StripCodeFences(output)), &topics); err != nil {
		return nil, fmt.Errorf("output must be a JSON array of strings: %v", err)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("topic list must not be empty")
	}
	for i, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("topic %d is empty", i)
		}
		topics[i] = t
	}
	return topics, nil
}

// TopicListValidator 校验输出是非空字符串的非空 JSON 数组
func TopicListValidator(output string) error {
	_, err := ParseTopicList(output)
	return err
}
