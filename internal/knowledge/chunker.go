package knowledge

import (
	"fmt"
	"iter"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
)

// Chunk 表示分块后的文本片段，Start/End 为 rune 偏移
type Chunk struct {
	Index int
	Text  string
	Start int
	End   int
}

// Chunker 固定窗口、固定重叠的文本分块器
//
// 相邻两块恰好重叠 overlap 个字符；末尾不足 size 的文本成为最后一块。
// 文本不做任何规范化，去掉重叠后按顺序拼接可还原原文。
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建分块器，overlap >= size 时返回 INVALID_CONFIGURATION
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, apperrors.NewInvalidConfiguration(fmt.Sprintf("chunk size must be positive, got %d", size))
	}
	if overlap < 0 {
		return nil, apperrors.NewInvalidConfiguration(fmt.Sprintf("chunk overlap must not be negative, got %d", overlap))
	}
	if overlap >= size {
		return nil, apperrors.NewInvalidConfiguration(
			fmt.Sprintf("chunk overlap (%d) must be smaller than chunk size (%d)", overlap, size))
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks 按顺序产出分块，序列只能消费一次
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	runes := []rune(text)
	step := c.size - c.overlap
	return func(yield func(Chunk) bool) {
		for start, idx := 0, 0; start < len(runes); start, idx = start+step, idx+1 {
			end := min(start+c.size, len(runes))
			if !yield(Chunk{Index: idx, Text: string(runes[start:end]), Start: start, End: end}) {
				return
			}
			if end == len(runes) {
				return
			}
		}
	}
}

// Split 将文本切分为多个chunk
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Reassemble 去掉重叠部分后拼接，Split 的逆操作
func Reassemble(chunks []Chunk, overlap int) string {
	var out []rune
	for i, chunk := range chunks {
		r := []rune(chunk.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
