package vector

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// Compile-time check that SQLiteIndex implements Index.
var _ Index = (*SQLiteIndex)(nil)

// SQLiteIndex stores embeddings in a SQLite table and performs brute-force
// cosine similarity search. Adequate for a single-textbook corpus (a few
// thousand chunks); an ANN-capable backend can replace it behind the Index
// interface if the corpus outgrows linear scans.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	table      string
	dims       int
}

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// NewSQLiteIndex wraps an existing *sql.DB. collection names the logical
// collection; dims is the fixed embedding dimensionality enforced on upsert.
func NewSQLiteIndex(db *sql.DB, collection string, dims int) *SQLiteIndex {
	return &SQLiteIndex{
		db:         db,
		collection: collection,
		table:      "vectors_" + tableNameSanitizer.ReplaceAllString(collection, "_"),
		dims:       dims,
	}
}

func (s *SQLiteIndex) EnsureCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL,
			distance   TEXT NOT NULL DEFAULT 'cosine',
			created_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, dimensions, distance, created_at)
		VALUES (?, ?, 'cosine', ?)
		ON CONFLICT(name) DO NOTHING`,
		s.collection, s.dims, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("registering collection %s: %w", s.collection, err)
	}

	var registeredDims int
	if err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM collections WHERE name = ?`, s.collection,
	).Scan(&registeredDims); err != nil {
		return fmt.Errorf("reading collection %s: %w", s.collection, err)
	}
	if registeredDims != s.dims {
		return fmt.Errorf("collection %s has %d dimensions, configured for %d",
			s.collection, registeredDims, s.dims)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          INTEGER PRIMARY KEY,
			content     TEXT NOT NULL,
			embedding   BLOB NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			week        TEXT NOT NULL DEFAULT '',
			file_path   TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			extra       TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		)`, s.table)); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}

	return nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, content, embedding, title, week, file_path, chunk_index, extra, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ch := range chunks {
		if len(ch.Embedding) != s.dims {
			tx.Rollback()
			return fmt.Errorf("chunk %d has %d-dimensional embedding, collection expects %d",
				ch.ID, len(ch.Embedding), s.dims)
		}
		extra := "{}"
		if len(ch.Metadata.Extra) > 0 {
			b, err := json.Marshal(ch.Metadata.Extra)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("marshalling extra metadata for chunk %d: %w", ch.ID, err)
			}
			extra = string(b)
		}
		if _, err := stmt.ExecContext(ctx,
			int64(ch.ID), ch.Content, encodeFloat32s(ch.Embedding),
			ch.Metadata.Title, ch.Metadata.Week, ch.Metadata.FilePath,
			ch.Metadata.ChunkIndex, extra, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting chunk %d: %w", ch.ID, err)
		}
	}

	return tx.Commit()
}

// typedFilterColumns maps filter keys to table columns. Other keys are
// matched against the extra JSON blob.
var typedFilterColumns = map[string]string{
	"title":     "title",
	"week":      "week",
	"file_path": "file_path",
}

func buildFilterClause(f *Filter) (string, []any) {
	if f == nil {
		return "", nil
	}

	var conds []string
	var args []any

	for key, val := range f.Equals {
		if col, ok := typedFilterColumns[key]; ok {
			conds = append(conds, col+" = ?")
		} else {
			conds = append(conds, "json_extract(extra, '$."+tableNameSanitizer.ReplaceAllString(key, "_")+"') = ?")
		}
		args = append(args, val)
	}

	for key, vals := range f.AnyOf {
		if len(vals) == 0 {
			continue
		}
		placeholders := "?" + strings.Repeat(",?", len(vals)-1)
		if col, ok := typedFilterColumns[key]; ok {
			conds = append(conds, col+" IN ("+placeholders+")")
		} else {
			conds = append(conds, "json_extract(extra, '$."+tableNameSanitizer.ReplaceAllString(key, "_")+"') IN ("+placeholders+")")
		}
		for _, v := range vals {
			args = append(args, v)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteIndex) Search(ctx context.Context, vec []float32, topK int, filter *Filter) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, nil
	}

	where, args := buildFilterClause(filter)

	// Phase 1: scan id + embedding only, keeping topK in a min-heap.
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, embedding FROM %s%s`, s.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	var buf []float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %d: %w", id, err)
		}

		score := cosine(vec, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full chunks for the winners only.
	scores := make(map[int64]float32, h.Len())
	ids := make([]any, 0, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(idScore)
		scores[item.ID] = item.Score
		ids = append(ids, item.ID)
	}

	placeholders := "?" + strings.Repeat(",?", len(ids)-1)
	full, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, embedding, title, week, file_path, chunk_index, extra
		FROM %s WHERE id IN (%s)`, s.table, placeholders), ids...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K chunks: %w", err)
	}
	defer full.Close()

	var results []ScoredChunk
	for full.Next() {
		var (
			id    int64
			ch    Chunk
			blob  []byte
			extra string
		)
		if err := full.Scan(&id, &ch.Content, &blob, &ch.Metadata.Title,
			&ch.Metadata.Week, &ch.Metadata.FilePath, &ch.Metadata.ChunkIndex, &extra); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		ch.ID = uint64(id)
		if ch.Embedding, err = decodeFloat32s(blob); err != nil {
			return nil, fmt.Errorf("decoding embedding for %d: %w", id, err)
		}
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &ch.Metadata.Extra); err != nil {
				return nil, fmt.Errorf("unmarshalling extra metadata for %d: %w", id, err)
			}
		}
		results = append(results, ScoredChunk{Chunk: ch, Score: scores[id]})
	}
	if err := full.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sortByScore(results)
	return results, nil
}

func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteIndex) DropCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", s.table, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return fmt.Errorf("deregistering collection %s: %w", s.collection, err)
	}
	return nil
}

// sortByScore orders results by score descending. Insertion sort is fine
// for topK-sized slices.
func sortByScore(results []ScoredChunk) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// decodeFloat32sInto reuses buf to avoid per-row allocations during scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is precomputed once per
// query. Mismatched lengths score zero instead of erroring so a chunk
// ingested under a different embedding model is never selected.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScore tracks only id + score during the scan phase.
type idScore struct {
	ID    int64
	Score float32
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
