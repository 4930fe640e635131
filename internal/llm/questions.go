package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 题目难度
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// GeneratedQuestion 模型生成的单选题
type GeneratedQuestion struct {
	Question   string `json:"question"`
	OptA       string `json:"opt_a"`
	OptB       string `json:"opt_b"`
	OptC       string `json:"opt_c"`
	OptD       string `json:"opt_d"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
}

// ParseQuestionBatch 解析 JSON 题目数组，容忍代码块与数组前后的说明文字
//
// 答案统一为大写字母 A-D，难度统一为 Easy/Medium/Hard。
func ParseQuestionBatch(output string) ([]GeneratedQuestion, error) {
	text := StripCodeFences(output)
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var questions []GeneratedQuestion
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, fmt.Errorf("output must be a JSON array of question objects: %v", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("question list must not be empty")
	}

	for i := range questions {
		q := &questions[i]
		q.Question = strings.TrimSpace(q.Question)
		if q.Question == "" {
			return nil, fmt.Errorf("question %d has empty text", i+1)
		}
		for _, opt := range []*string{&q.OptA, &q.OptB, &q.OptC, &q.OptD} {
			*opt = strings.TrimSpace(*opt)
			if *opt == "" {
				return nil, fmt.Errorf("question %d must have four non-empty options opt_a..opt_d", i+1)
			}
		}

		q.Answer = strings.ToUpper(strings.TrimSpace(q.Answer))
		switch q.Answer {
		case "A", "B", "C", "D":
		default:
			return nil, fmt.Errorf("question %d answer must be one of A, B, C, D, got %q", i+1, q.Answer)
		}

		difficulty, ok := normalizeDifficulty(q.Difficulty)
		if !ok {
			return nil, fmt.Errorf("question %d difficulty must be Easy, Medium or Hard, got %q", i+1, q.Difficulty)
		}
		q.Difficulty = difficulty
	}
	return questions, nil
}

// QuestionBatchValidator 校验输出是合法的单选题数组
func QuestionBatchValidator(output string) error {
	_, err := ParseQuestionBatch(output)
	return err
}

func normalizeDifficulty(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, true
	case "medium", "":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	}
	return "", false
}
