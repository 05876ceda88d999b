package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/repokg/repokg/internal/model"
	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const schemaVersion = 1

// SQLiteStore is the embedded single-file store backing the graph.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
	path   string
}

// NewSQLiteStore opens (creating if absent) the SQLite-backed store at path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{db: db, logger: logger, path: path}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := store.checkSchemaVersion(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT NOT NULL,
		repo_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT,
		body TEXT,
		props TEXT,
		valid_from DATETIME NOT NULL,
		valid_to DATETIME,
		tx_from DATETIME NOT NULL,
		tx_to DATETIME,
		PRIMARY KEY (id, tx_from)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_current ON nodes(id) WHERE tx_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_nodes_repo_type ON nodes(repo_id, type);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT NOT NULL,
		src_id TEXT NOT NULL,
		dst_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		weight REAL DEFAULT 1.0,
		props TEXT,
		valid_from DATETIME NOT NULL,
		valid_to DATETIME,
		tx_from DATETIME NOT NULL,
		tx_to DATETIME,
		PRIMARY KEY (id, tx_from)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_current ON edges(id) WHERE tx_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src_id) WHERE tx_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst_id) WHERE tx_to IS NULL;
	CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation) WHERE tx_to IS NULL;

	CREATE TABLE IF NOT EXISTS watermarks (
		repo_id TEXT NOT NULL,
		ingestor TEXT NOT NULL,
		watermark TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (repo_id, ingestor)
	);

	CREATE TABLE IF NOT EXISTS advisory_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		holder TEXT NOT NULL,
		acquired_at DATETIME NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
		id UNINDEXED, repo_id UNINDEXED, title, body
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	s.db.Exec(`INSERT OR IGNORE INTO schema_info(key, value) VALUES ('schema_version', ?)`, fmt.Sprintf("%d", schemaVersion))
	return nil
}

func (s *SQLiteStore) checkSchemaVersion() error {
	var v string
	err := s.db.Get(&v, `SELECT value FROM schema_info WHERE key = 'schema_version'`)
	if err != nil {
		return kgerrors.SchemaMismatch("store has no schema_version record")
	}
	if v != fmt.Sprintf("%d", schemaVersion) {
		return kgerrors.SchemaMismatchf("store schema_version %s does not match binary schema_version %d", v, schemaVersion)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- nodes / edges -------------------------------------------------------

type nodeRow struct {
	ID        string    `db:"id"`
	RepoID    string    `db:"repo_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Props     string    `db:"props"`
	ValidFrom time.Time `db:"valid_from"`
	ValidTo   *time.Time `db:"valid_to"`
	TxFrom    time.Time `db:"tx_from"`
	TxTo      *time.Time `db:"tx_to"`
}

func (s *SQLiteStore) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, n := range nodes {
		if err := upsertNodeTx(ctx, tx, n, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertNodeTx(ctx context.Context, tx *sqlx.Tx, n model.Node, now time.Time) error {
	var existing nodeRow
	err := tx.GetContext(ctx, &existing, `SELECT * FROM nodes WHERE id = ? AND tx_to IS NULL`, n.ID)
	propsJSON, _ := json.Marshal(n.Props)

	if err == nil {
		// Close-and-reinsert discipline: only churn a row when content changed.
		if existing.Title == n.Title && existing.Body == n.Body && existing.Props == string(propsJSON) {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE nodes SET tx_to = ? WHERE id = ? AND tx_to IS NULL`, now, n.ID); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}

	if n.ValidFrom.IsZero() {
		n.ValidFrom = now
	}
	if n.TxFrom.IsZero() {
		n.TxFrom = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, repo_id, type, title, body, props, valid_from, valid_to, tx_from, tx_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RepoID, string(n.Type), n.Title, n.Body, string(propsJSON), n.ValidFrom, n.ValidTo, n.TxFrom, n.TxTo)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM nodes_fts WHERE id = ?`, n.ID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO nodes_fts (id, repo_id, title, body) VALUES (?, ?, ?, ?)`, n.ID, n.RepoID, n.Title, n.Body)
	return err
}

func (s *SQLiteStore) UpsertEdges(ctx context.Context, edges []model.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	seen := make(map[string]bool, len(edges)) // ingest-time dedup on natural key, per SPEC_FULL.md §13
	for _, e := range edges {
		key := model.EdgeNaturalKey(e.SrcID, e.DstID, e.Relation)
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.ID == "" {
			e.ID = key
		}
		if err := upsertEdgeTx(ctx, tx, e, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertEdgeTx(ctx context.Context, tx *sqlx.Tx, e model.Edge, now time.Time) error {
	if e.Weight == 0 {
		e.Weight = 1.0
	}
	propsJSON, _ := json.Marshal(e.Props)

	var existing edgeRow
	err := tx.GetContext(ctx, &existing, `SELECT * FROM edges WHERE id = ? AND tx_to IS NULL`, e.ID)
	if err == nil {
		// Close-and-reinsert discipline: only churn a row when content changed.
		if existing.Weight == e.Weight && existing.Props == string(propsJSON) {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE edges SET tx_to = ? WHERE id = ? AND tx_to IS NULL`, now, e.ID); err != nil {
			return err
		}
	} else if err != sql.ErrNoRows {
		return err
	}
	if e.ValidFrom.IsZero() {
		e.ValidFrom = now
	}
	if e.TxFrom.IsZero() {
		e.TxFrom = now
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO edges (id, src_id, dst_id, relation, weight, props, valid_from, valid_to, tx_from, tx_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SrcID, e.DstID, string(e.Relation), e.Weight, string(propsJSON), e.ValidFrom, e.ValidTo, e.TxFrom, e.TxTo)
	return err
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	var row nodeRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM nodes WHERE id = ? AND tx_to IS NULL`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kgerrors.NotFoundf("node %q not found", id)
		}
		return nil, err
	}
	return rowToNode(row), nil
}

func (s *SQLiteStore) GetNodeAsOf(ctx context.Context, id string, t time.Time) (*model.Node, error) {
	var row nodeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM nodes
		WHERE id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		  AND tx_from <= ? AND (tx_to IS NULL OR tx_to > ?)
		ORDER BY tx_from DESC LIMIT 1`, id, t, t, t, t)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kgerrors.NotFoundf("node %q not found as of %s", id, t)
		}
		return nil, err
	}
	return rowToNode(row), nil
}

func rowToNode(row nodeRow) *model.Node {
	var props map[string]any
	json.Unmarshal([]byte(row.Props), &props)
	return &model.Node{
		ID: row.ID, RepoID: row.RepoID, Type: model.NodeType(row.Type),
		Title: row.Title, Body: row.Body, Props: props,
		ValidFrom: row.ValidFrom, ValidTo: row.ValidTo, TxFrom: row.TxFrom, TxTo: row.TxTo,
	}
}

type edgeRow struct {
	ID        string    `db:"id"`
	SrcID     string    `db:"src_id"`
	DstID     string    `db:"dst_id"`
	Relation  string    `db:"relation"`
	Weight    float64   `db:"weight"`
	Props     string    `db:"props"`
	ValidFrom time.Time `db:"valid_from"`
	ValidTo   *time.Time `db:"valid_to"`
	TxFrom    time.Time `db:"tx_from"`
	TxTo      *time.Time `db:"tx_to"`
}

func (s *SQLiteStore) EdgesByNode(ctx context.Context, id string, dir EdgeDirection, relations []model.EdgeRelation) ([]model.Edge, error) {
	var clauses []string
	args := []interface{}{}

	switch dir {
	case DirOut:
		clauses = append(clauses, "src_id = ?")
		args = append(args, id)
	case DirIn:
		clauses = append(clauses, "dst_id = ?")
		args = append(args, id)
	default:
		clauses = append(clauses, "(src_id = ? OR dst_id = ?)")
		args = append(args, id, id)
	}
	clauses = append(clauses, "tx_to IS NULL")

	if len(relations) > 0 {
		placeholders := make([]string, len(relations))
		for i, r := range relations {
			placeholders[i] = "?"
			args = append(args, string(r))
		}
		clauses = append(clauses, fmt.Sprintf("relation IN (%s)", strings.Join(placeholders, ",")))
	}

	query := "SELECT * FROM edges WHERE " + strings.Join(clauses, " AND ")
	var rows []edgeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]model.Edge, 0, len(rows))
	for _, r := range rows {
		var props map[string]any
		json.Unmarshal([]byte(r.Props), &props)
		out = append(out, model.Edge{
			ID: r.ID, SrcID: r.SrcID, DstID: r.DstID, Relation: model.EdgeRelation(r.Relation),
			Weight: r.Weight, Props: props,
			ValidFrom: r.ValidFrom, ValidTo: r.ValidTo, TxFrom: r.TxFrom, TxTo: r.TxTo,
		})
	}
	return out, nil
}

func (s *SQLiteStore) SearchFTS(ctx context.Context, repoID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM nodes_fts WHERE nodes_fts MATCH ? AND repo_id = ?
		ORDER BY rank LIMIT ?`, query, repoID, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLiteStore) QueryNodes(ctx context.Context, repoID string, types []model.NodeType, from, to *time.Time) ([]model.Node, error) {
	clauses := []string{"tx_to IS NULL", "repo_id = ?"}
	args := []interface{}{repoID}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, fmt.Sprintf("type IN (%s)", strings.Join(placeholders, ",")))
	}
	if from != nil {
		clauses = append(clauses, "valid_from >= ?")
		args = append(args, *from)
	}
	if to != nil {
		clauses = append(clauses, "valid_from <= ?")
		args = append(args, *to)
	}

	query := "SELECT * FROM nodes WHERE " + strings.Join(clauses, " AND ") + " ORDER BY id"
	var rows []nodeRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, *rowToNode(r))
	}
	return out, nil
}

// --- watermarks / locking / stats ----------------------------------------

func (s *SQLiteStore) GetWatermark(ctx context.Context, repoID, ingestorName string) (string, error) {
	var wm string
	err := s.db.GetContext(ctx, &wm, `SELECT watermark FROM watermarks WHERE repo_id = ? AND ingestor = ?`, repoID, ingestorName)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return wm, err
}

func (s *SQLiteStore) SetWatermark(ctx context.Context, repoID, ingestorName, watermark string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (repo_id, ingestor, watermark, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_id, ingestor) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`,
		repoID, ingestorName, watermark, time.Now().UTC())
	return err
}

func (s *SQLiteStore) TryAdvisoryLock(ctx context.Context) (bool, error) {
	holder := fmt.Sprintf("pid:%d", os.Getpid())
	_, err := s.db.ExecContext(ctx, `INSERT INTO advisory_lock (id, holder, acquired_at) VALUES (1, ?, ?)`, holder, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "constraint failed") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ReleaseAdvisoryLock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM advisory_lock WHERE id = 1`)
	return err
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.GetContext(ctx, &st.NodeCount, `SELECT COUNT(*) FROM nodes WHERE tx_to IS NULL`); err != nil {
		return st, err
	}
	if err := s.db.GetContext(ctx, &st.EdgeCount, `SELECT COUNT(*) FROM edges WHERE tx_to IS NULL`); err != nil {
		return st, err
	}
	st.SchemaVersion = schemaVersion
	st.Watermarks = map[string]string{}

	type wmRow struct {
		RepoID   string `db:"repo_id"`
		Ingestor string `db:"ingestor"`
		Value    string `db:"watermark"`
	}
	var wms []wmRow
	if err := s.db.SelectContext(ctx, &wms, `SELECT repo_id, ingestor, watermark FROM watermarks`); err != nil {
		return st, err
	}
	for _, w := range wms {
		st.Watermarks[w.RepoID+"/"+w.Ingestor] = w.Value
	}

	if info, err := os.Stat(s.path); err == nil {
		st.SizeBytes = info.Size()
	}
	return st, nil
}

// --- transactions ---------------------------------------------------------

type sqliteTx struct {
	tx  *sqlx.Tx
	now time.Time
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, now: time.Now().UTC()}, nil
}

func (t *sqliteTx) UpsertNodes(ctx context.Context, nodes []model.Node) error {
	for _, n := range nodes {
		if err := upsertNodeTx(ctx, t.tx, n, t.now); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) UpsertEdges(ctx context.Context, edges []model.Edge) error {
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		key := model.EdgeNaturalKey(e.SrcID, e.DstID, e.Relation)
		if seen[key] {
			continue
		}
		seen[key] = true
		if e.ID == "" {
			e.ID = key
		}
		if err := upsertEdgeTx(ctx, t.tx, e, t.now); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) SetWatermark(ctx context.Context, repoID, ingestorName, watermark string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO watermarks (repo_id, ingestor, watermark, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(repo_id, ingestor) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`,
		repoID, ingestorName, watermark, t.now)
	return err
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }
