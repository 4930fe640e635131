package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/aihub/classroom-rag/internal/errors"
	_ "modernc.org/sqlite"
)

const localIndexFile = "index.sqlite3"

// LocalIndex 基于 SQLite 文件的持久化向量索引
//
// 每个集合在 collections 表登记模型与维度，记录按自增 seq 保存写入顺序，
// 检索时在进程内做余弦相似度计算。
type LocalIndex struct {
	db         *sql.DB
	collection string
	dims       int
	path       string
}

// OpenLocalIndex 打开或创建 dir 下名为 collection 的集合
func OpenLocalIndex(dir, collection, model string, dims int) (*LocalIndex, error) {
	if collection == "" {
		return nil, apperrors.NewInvalidConfiguration("vector index collection name is required")
	}
	if dims <= 0 {
		return nil, apperrors.NewInvalidConfiguration("vector index dimensions must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	path := filepath.Join(dir, localIndexFile)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open local index: %w", err)
	}
	db.SetMaxOpenConns(1)

	idx := &LocalIndex{db: db, collection: collection, dims: dims, path: path}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := idx.registerCollection(model); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (l *LocalIndex) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			dimensions INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			collection TEXT NOT NULL,
			document_id INTEGER NOT NULL,
			classroom_id INTEGER NOT NULL,
			filename TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			page INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			vector BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_scope ON entries(collection, classroom_id, document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate local index: %w", err)
		}
	}
	return nil
}

// registerCollection 集合维度一经确定不可更改
func (l *LocalIndex) registerCollection(model string) error {
	var existingModel string
	var existingDims int
	err := l.db.QueryRow(`SELECT model, dimensions FROM collections WHERE name = ?`, l.collection).
		Scan(&existingModel, &existingDims)
	switch {
	case err == sql.ErrNoRows:
		_, err = l.db.Exec(`INSERT INTO collections(name, model, dimensions) VALUES(?, ?, ?)`,
			l.collection, model, l.dims)
		if err != nil {
			return fmt.Errorf("register collection: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("load collection: %w", err)
	}

	if existingDims != l.dims || (model != "" && existingModel != model) {
		return apperrors.NewInvalidConfiguration(fmt.Sprintf(
			"collection %q was built with %s/%d, configured embedder is %s/%d",
			l.collection, existingModel, existingDims, model, l.dims))
	}
	return nil
}

func (l *LocalIndex) Add(ctx context.Context, entries []IndexEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	prepared, ids, err := prepareEntries(entries, l.dims)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries
		(id, collection, document_id, classroom_id, filename, chunk_index, page, content, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	defer stmt.Close()

	for _, e := range prepared {
		_, err := stmt.ExecContext(ctx, e.ID, l.collection,
			e.Metadata.DocumentID, e.Metadata.ClassroomID, e.Metadata.Filename,
			e.Metadata.ChunkIndex, e.Metadata.Page, e.Text, encodeVector(e.Vector))
		if err != nil {
			return nil, apperrors.NewIndexWriteFailed(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.NewIndexWriteFailed(err)
	}
	return ids, nil
}

func (l *LocalIndex) where(filter Filter) (string, []any) {
	clauses := []string{"collection = ?"}
	args := []any{l.collection}
	if filter.ClassroomID != 0 {
		clauses = append(clauses, "classroom_id = ?")
		args = append(args, filter.ClassroomID)
	}
	if filter.DocumentID != 0 {
		clauses = append(clauses, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.Filename != "" {
		clauses = append(clauses, "filename = ?")
		args = append(args, filter.Filename)
	}
	return strings.Join(clauses, " AND "), args
}

func (l *LocalIndex) query(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	where, args := l.where(filter)
	rows, err := l.db.QueryContext(ctx, `SELECT id, document_id, classroom_id, filename, chunk_index, page, content, vector
		FROM entries WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var blob []byte
		if err := rows.Scan(&e.ID, &e.Metadata.DocumentID, &e.Metadata.ClassroomID, &e.Metadata.Filename,
			&e.Metadata.ChunkIndex, &e.Metadata.Page, &e.Text, &blob); err != nil {
			return nil, err
		}
		e.Vector = decodeVector(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *LocalIndex) Search(ctx context.Context, query []float32, k int, filter Filter) ([]SearchMatch, error) {
	if len(query) != l.dims {
		return nil, apperrors.NewValidationError("query vector dimension does not match index")
	}
	entries, err := l.query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search local index: %w", err)
	}
	matches := make([]SearchMatch, 0, len(entries))
	for _, e := range entries {
		matches = append(matches, SearchMatch{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Score:    cosineSimilarity(query, e.Vector),
		})
	}
	return rankMatches(matches, k), nil
}

func (l *LocalIndex) Get(ctx context.Context, filter Filter) ([]IndexEntry, error) {
	entries, err := l.query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get from local index: %w", err)
	}
	return entries, nil
}

func (l *LocalIndex) Delete(ctx context.Context, filter Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, apperrors.NewValidationError(errEmptyDeleteFilter.Error())
	}
	where, args := l.where(filter)
	res, err := l.db.ExecContext(ctx, `DELETE FROM entries WHERE `+where, args...)
	if err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewIndexWriteFailed(err)
	}
	return int(n), nil
}

// Path 索引文件路径
func (l *LocalIndex) Path() string { return l.path }

func (l *LocalIndex) Ready() bool { return l.db != nil }

func (l *LocalIndex) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
