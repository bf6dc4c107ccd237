package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geojoin/internal/feature"
)

const sqliteCatalog = `
CREATE TABLE IF NOT EXISTS layers (
	name          TEXT PRIMARY KEY,
	geometry_type TEXT NOT NULL,
	crs           TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL DEFAULT '',
	feature_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLite writes a layer into a SQLite database: one table per layer holding
// typed attribute columns and a WKB geometry blob, plus a row in the
// "layers" catalog. The whole layer is written in one transaction.
type SQLite struct {
	dsn   string
	table string

	db    *sql.DB
	tx    *sql.Tx
	stmt  *sql.Stmt
	layer Layer
	count int
}

// NewSQLite writes to the database at dsn. table overrides the layer name as
// the destination table.
func NewSQLite(dsn, table string) *SQLite {
	return &SQLite{dsn: dsn, table: table}
}

// Create implements Sink.
func (s *SQLite) Create(ctx context.Context, layer Layer) error {
	if s.db != nil {
		return eris.New("sink: sqlite layer already created")
	}
	table := s.table
	if table == "" {
		table = layer.Name
	}
	if table == "" {
		return eris.New("sink: sqlite needs a table or layer name")
	}
	s.table = table

	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteCatalog); err != nil {
		db.Close()
		return eris.Wrap(err, "sqlite: create catalog")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return eris.Wrap(err, "sqlite: begin")
	}

	cols := make([]string, 0, len(layer.Schema)+2)
	cols = append(cols, "fid INTEGER PRIMARY KEY AUTOINCREMENT")
	names := make([]string, 0, len(layer.Schema)+1)
	for _, f := range layer.Schema {
		cols = append(cols, quoteSQLite(f.Name)+" "+sqliteType(f.Type))
		names = append(names, quoteSQLite(f.Name))
	}
	cols = append(cols, "geom BLOB NOT NULL")
	names = append(names, "geom")

	ddl := []string{
		"DROP TABLE IF EXISTS " + quoteSQLite(table),
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteSQLite(table), strings.Join(cols, ", ")),
	}
	for _, q := range ddl {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			db.Close()
			return eris.Wrapf(err, "sqlite: create table %s", table)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteSQLite(table), strings.Join(names, ", "), placeholders))
	if err != nil {
		_ = tx.Rollback()
		db.Close()
		return eris.Wrap(err, "sqlite: prepare insert")
	}

	s.db, s.tx, s.stmt, s.layer = db, tx, stmt, layer
	return nil
}

// Append implements Sink.
func (s *SQLite) Append(ctx context.Context, rec feature.Record) error {
	if s.stmt == nil {
		return eris.New("sink: sqlite layer is not open")
	}
	if len(rec.Values) != len(s.layer.Schema) {
		return eris.Errorf("sink: record has %d values, layer has %d fields", len(rec.Values), len(s.layer.Schema))
	}
	if rec.Geometry == nil {
		return eris.New("sink: record has no geometry")
	}

	blob, err := wkb.Marshal(rec.Geometry, wkb.NDR)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode geometry")
	}

	args := make([]any, 0, len(rec.Values)+1)
	for _, v := range rec.Values {
		args = append(args, sqliteValue(v))
	}
	args = append(args, blob)

	if _, err := s.stmt.ExecContext(ctx, args...); err != nil {
		return eris.Wrap(err, "sqlite: insert feature")
	}
	s.count++
	return nil
}

// Close implements Sink. It records the layer in the catalog and commits.
func (s *SQLite) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	defer s.release()

	if _, err := s.tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO layers (name, geometry_type, crs, run_id, feature_count) VALUES (?, ?, ?, ?, ?)`,
		s.table, s.layer.Geometry.String(), s.layer.CRS, s.layer.RunID, s.count,
	); err != nil {
		_ = s.tx.Rollback()
		return eris.Wrap(err, "sqlite: register layer")
	}
	if err := s.tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

// Abort implements Sink. Nothing from this layer is kept.
func (s *SQLite) Abort() error {
	if s.db == nil {
		return nil
	}
	defer s.release()
	if err := s.tx.Rollback(); err != nil {
		return eris.Wrap(err, "sqlite: rollback")
	}
	return nil
}

func (s *SQLite) release() {
	if s.stmt != nil {
		_ = s.stmt.Close()
	}
	_ = s.db.Close()
	s.db, s.tx, s.stmt = nil, nil, nil
}

func sqliteType(t feature.FieldType) string {
	switch t {
	case feature.TypeInt, feature.TypeBool:
		return "INTEGER"
	case feature.TypeFloat:
		return "REAL"
	}
	return "TEXT"
}

func sqliteValue(v feature.Value) any {
	if v.Null {
		return nil
	}
	if v.Kind == feature.TypeBool {
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	}
	return v.Any()
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
