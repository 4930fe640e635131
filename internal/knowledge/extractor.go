package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	"github.com/gabriel-vasile/mimetype"
	officelicense "github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// Segment 抽取出的有序文本段，带页码或章节边界
type Segment struct {
	Page    int
	Section string
	Text    string
}

// segmentSeparator 段与段拼接时使用的分隔符
const segmentSeparator = "\n\n"

// ExtractedDocument 一个文件的抽取结果
type ExtractedDocument struct {
	MIME     string
	Segments []Segment
}

// Text 按顺序拼接全部文本段
func (d ExtractedDocument) Text() string {
	parts := make([]string, len(d.Segments))
	for i, s := range d.Segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, segmentSeparator)
}

// PageAt 返回全文第 offset 个字符所在的页码，未分页时返回0
func (d ExtractedDocument) PageAt(offset int) int {
	pos := 0
	for i, s := range d.Segments {
		end := pos + utf8.RuneCountInString(s.Text)
		if offset < end || i == len(d.Segments)-1 {
			return s.Page
		}
		pos = end + utf8.RuneCountInString(segmentSeparator)
		if offset < pos {
			return s.Page
		}
	}
	return 0
}

// Extractor 把文件字节解析为有序文本段
type Extractor interface {
	Extract(ctx context.Context, data []byte, filename string) ([]Segment, error)
	Extensions() []string
	MIMETypes() []string
}

// TextExtractor 纯文本与 Markdown
type TextExtractor struct{}

func (TextExtractor) Extensions() []string { return []string{".txt", ".md", ".markdown"} }
func (TextExtractor) MIMETypes() []string  { return []string{"text/plain"} }

func (TextExtractor) Extract(_ context.Context, data []byte, filename string) ([]Segment, error) {
	if !utf8.Valid(data) {
		return nil, apperrors.NewExtractionFailed(filename, fmt.Errorf("content is not valid UTF-8"))
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.ToLower(filepath.Ext(filename)) == ".txt" {
		return []Segment{{Page: 1, Text: text}}, nil
	}

	// Markdown 按标题切分章节
	var segments []Segment
	var section string
	var buf strings.Builder
	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			segments = append(segments, Segment{Page: 1, Section: section, Text: strings.TrimRight(buf.String(), "\n")})
		}
		buf.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			section = strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return segments, nil
}

// PDFExtractor 逐页抽取PDF文本
type PDFExtractor struct{}

func (PDFExtractor) Extensions() []string { return []string{".pdf"} }
func (PDFExtractor) MIMETypes() []string  { return []string{"application/pdf"} }

func (PDFExtractor) Extract(ctx context.Context, data []byte, filename string) ([]Segment, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewExtractionFailed(filename, err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, apperrors.NewExtractionFailed(filename, err)
	}

	segments := make([]Segment, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, apperrors.NewExtractionFailed(filename, fmt.Errorf("page %d: %w", i, err))
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, apperrors.NewExtractionFailed(filename, fmt.Errorf("page %d: %w", i, err))
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, apperrors.NewExtractionFailed(filename, fmt.Errorf("page %d: %w", i, err))
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		segments = append(segments, Segment{Page: i, Text: text})
	}
	return segments, nil
}

// DocxExtractor Word文档，按标题样式切分章节（不支持旧版 .doc）
type DocxExtractor struct{}

func (DocxExtractor) Extensions() []string { return []string{".docx"} }
func (DocxExtractor) MIMETypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}
}

func (DocxExtractor) Extract(_ context.Context, data []byte, filename string) ([]Segment, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.NewExtractionFailed(filename, err)
	}
	defer doc.Close()

	var segments []Segment
	var section string
	var buf strings.Builder
	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			segments = append(segments, Segment{Section: section, Text: strings.TrimRight(buf.String(), "\n")})
		}
		buf.Reset()
	}
	for _, para := range doc.Paragraphs() {
		var line strings.Builder
		for _, run := range para.Runs() {
			line.WriteString(run.Text())
		}
		if strings.HasPrefix(para.Style(), "Heading") {
			flush()
			section = strings.TrimSpace(line.String())
		}
		buf.WriteString(line.String())
		buf.WriteString("\n")
	}
	flush()
	return segments, nil
}

// XlsxExtractor Excel工作簿，每个工作表一个文本段
type XlsxExtractor struct{}

func (XlsxExtractor) Extensions() []string { return []string{".xlsx"} }
func (XlsxExtractor) MIMETypes() []string {
	return []string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}
}

func (XlsxExtractor) Extract(_ context.Context, data []byte, filename string) ([]Segment, error) {
	wb, err := spreadsheet.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.NewExtractionFailed(filename, err)
	}
	defer wb.Close()

	var segments []Segment
	for i, sheet := range wb.Sheets() {
		var sb strings.Builder
		for _, row := range sheet.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				cells = append(cells, cell.GetString())
			}
			if len(cells) > 0 {
				sb.WriteString(strings.Join(cells, "\t"))
				sb.WriteString("\n")
			}
		}
		if strings.TrimSpace(sb.String()) == "" {
			continue
		}
		segments = append(segments, Segment{Page: i + 1, Section: sheet.Name(), Text: strings.TrimRight(sb.String(), "\n")})
	}
	return segments, nil
}

var licenseOnce sync.Once

// ApplyUnidocLicense 设置 unidoc 计量许可，进程内只生效一次
func ApplyUnidocLicense(key string) error {
	var err error
	licenseOnce.Do(func() {
		if key == "" {
			return
		}
		if e := pdflicense.SetMeteredKey(key); e != nil {
			err = fmt.Errorf("unipdf license: %w", e)
			return
		}
		if e := officelicense.SetMeteredKey(key); e != nil {
			err = fmt.Errorf("unioffice license: %w", e)
		}
	})
	return err
}

// ExtractorRegistry 按扩展名选择抽取器，扩展名未知时按内容嗅探
type ExtractorRegistry struct {
	byExt  map[string]Extractor
	byMIME map[string]Extractor
}

// NewExtractorRegistry 创建注册表，不传参数时注册全部内置抽取器
func NewExtractorRegistry(extractors ...Extractor) *ExtractorRegistry {
	if len(extractors) == 0 {
		extractors = []Extractor{PDFExtractor{}, DocxExtractor{}, XlsxExtractor{}, TextExtractor{}}
	}
	r := &ExtractorRegistry{byExt: map[string]Extractor{}, byMIME: map[string]Extractor{}}
	for _, ex := range extractors {
		r.Register(ex)
	}
	return r
}

// Register 注册抽取器，后注册的覆盖先注册的
func (r *ExtractorRegistry) Register(ex Extractor) {
	for _, ext := range ex.Extensions() {
		r.byExt[strings.ToLower(ext)] = ex
	}
	for _, m := range ex.MIMETypes() {
		r.byMIME[m] = ex
	}
}

// SupportedExtensions 已注册的扩展名
func (r *ExtractorRegistry) SupportedExtensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	return out
}

// Supports 判断文件名是否可被处理
func (r *ExtractorRegistry) Supports(filename string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// DetectMIME 嗅探内容类型，去掉参数部分
func DetectMIME(data []byte) string {
	return baseMIME(mimetype.Detect(data))
}

func baseMIME(m *mimetype.MIME) string {
	s := m.String()
	if i := strings.Index(s, ";"); i >= 0 {
		s = s[:i]
	}
	return s
}

// lookup 先按扩展名、再按嗅探到的类型及其父类型查找，内容只嗅探一次
func (r *ExtractorRegistry) lookup(data []byte, filename string) (Extractor, string) {
	detected := mimetype.Detect(data)
	if ex, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]; ok {
		return ex, baseMIME(detected)
	}
	for m := detected; m != nil; m = m.Parent() {
		base := baseMIME(m)
		if ex, ok := r.byMIME[base]; ok {
			return ex, base
		}
	}
	return nil, baseMIME(detected)
}

// Extract 抽取文件文本，格式不支持返回 UnsupportedFormat，无文本返回 ExtractionFailed
func (r *ExtractorRegistry) Extract(ctx context.Context, data []byte, filename string) (*ExtractedDocument, error) {
	ex, mime := r.lookup(data, filename)
	if ex == nil {
		return nil, apperrors.NewUnsupportedFormat(filename)
	}
	segments, err := ex.Extract(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	doc := &ExtractedDocument{MIME: mime, Segments: segments}
	if strings.TrimSpace(doc.Text()) == "" {
		return nil, apperrors.NewExtractionFailed(filename, fmt.Errorf("no extractable text"))
	}
	return doc, nil
}
