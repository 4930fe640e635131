package knowledge

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// LocalEmbedder 进程内特征哈希嵌入器
//
// 词元与字符三元组经 FNV-1a 哈希投影到固定维度并做 L2 归一化，
// 不依赖外部服务。哈希种子表在首次调用时构建一次，之后只读。
type LocalEmbedder struct {
	model string
	dims  int

	once  sync.Once
	seeds []uint64
	stop  map[string]struct{}
}

const localSeedCount = 4

// LocalHashModel 特征哈希嵌入器的模型名，与任何真实语义模型区分
const LocalHashModel = "local-hash-v1"

// NewLocalEmbedder 创建本地嵌入器，model 为空时使用 LocalHashModel
func NewLocalEmbedder(model string, dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = 384
	}
	if model == "" {
		model = LocalHashModel
	}
	return &LocalEmbedder{model: model, dims: dims}
}

func (e *LocalEmbedder) materialize() {
	e.once.Do(func() {
		h := fnv.New64a()
		h.Write([]byte(e.model))
		base := h.Sum64()
		e.seeds = make([]uint64, localSeedCount)
		for i := range e.seeds {
			base = splitmix(base + uint64(i))
			e.seeds[i] = base
		}
		e.stop = make(map[string]struct{}, len(englishStopwords))
		for _, w := range englishStopwords {
			e.stop[w] = struct{}{}
		}
	})
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.materialize()

	acc := make([]float64, e.dims)
	for _, tok := range tokenize(text) {
		if _, skip := e.stop[tok]; skip {
			continue
		}
		e.accumulate(acc, tok, 1.0)
		r := []rune(tok)
		if len(r) < 4 {
			continue
		}
		for i := 0; i+3 <= len(r); i++ {
			e.accumulate(acc, "#"+string(r[i:i+3]), 0.35)
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func (e *LocalEmbedder) accumulate(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	var buf [8]byte
	for _, seed := range e.seeds {
		binary.LittleEndian.PutUint64(buf[:], sum^seed)
		v := splitmix(binary.LittleEndian.Uint64(buf[:]))
		idx := int(v % uint64(e.dims))
		if v>>63 == 1 {
			acc[idx] -= weight
		} else {
			acc[idx] += weight
		}
	}
}

// EmbedMany 逐条调用 Embed，保证与单条结果一致
func (e *LocalEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *LocalEmbedder) Dimensions() int   { return e.dims }
func (e *LocalEmbedder) ModelName() string { return e.model }
func (e *LocalEmbedder) Ready() bool       { return true }

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// tokenize 小写化并按非字母数字切分，汉字逐字成词
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

var englishStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "in",
	"is", "it", "its", "of", "on", "or", "that", "the", "to", "was", "were", "what",
	"which", "who", "will", "with",
}
