// Package store implements the batched storage engine (§4.2): a
// thread-unsafe, single-writer engine with per-table in-memory batches, a
// deterministic flush order taken from the schema contract, and explicit
// transaction boundaries. It is the only component that issues SQL against
// a contract-owned store.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sastcore/engine/internal/contract"
	"github.com/sastcore/engine/internal/telemetry"
)

// Row is one pending row: column name -> value, keyed by the contract's
// declared column names for the target table.
type Row map[string]any

// Store is a single-writer batched storage engine bound to one contract
// and one SQLite database file.
type Store struct {
	db       *sql.DB
	contract *contract.Contract
	logger   *telemetry.Logger

	batchSize int
	batches   map[string][]Row

	inTxn bool
	tx    *sql.Tx

	// cfgBlockSeq hands out temporary negative IDs for cfg_blocks rows
	// added before flush; see AddCFGBlock.
	cfgBlockSeq int64

	// cfgIDMap maps temporary negative cfg_blocks IDs to their real
	// autoincrement IDs once flushCFGBlocksWithFixup has run in the
	// current transaction.
	cfgIDMap map[int64]int64
}

// Open creates (if fresh) or opens an existing SQLite database at path,
// applies the contract's CREATE TABLE/INDEX statements when fresh is true,
// and returns a Store ready to accept rows. SQLite is opened in
// single-threaded journaled mode per §5 ("no concurrent transactions").
func Open(path string, c *contract.Contract, fresh bool, batchSize int, logger *telemetry.Logger) (*Store, error) {
	if fresh {
		_ = os.Remove(path)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if fresh {
		if err := c.Create(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	if batchSize <= 0 {
		batchSize = 1000
	}

	return &Store{
		db:        db,
		contract:  c,
		logger:    logger,
		batchSize: batchSize,
		batches:   make(map[string][]Row),
	}, nil
}

// DB exposes the underlying connection for read-only querying by later
// stages (Stage 2 opens the repo-index store read-only, §5).
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection. Any unflushed batches
// are discarded, not silently flushed — callers must call FlushAll first.
func (s *Store) Close() error { return s.db.Close() }

// Begin opens the single explicit transaction for this store. Nested
// transactions are forbidden (§4.2); calling Begin twice without an
// intervening Commit/Rollback is an error.
func (s *Store) Begin() error {
	if s.inTxn {
		return fmt.Errorf("store: nested transaction attempted (forbidden by contract)")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	s.tx = tx
	s.inTxn = true
	return nil
}

// Commit commits the open transaction.
func (s *Store) Commit() error {
	if !s.inTxn {
		return fmt.Errorf("store: commit called with no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	s.inTxn = false
	return err
}

// Rollback aborts the open transaction and discards all pending batches.
func (s *Store) Rollback() error {
	if !s.inTxn {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	s.inTxn = false
	s.batches = make(map[string][]Row)
	return err
}

// Add enqueues one row into the named table's in-memory batch. The batch
// is flushed automatically when it reaches the configured max size.
// Columns declared NOT NULL that are missing from row, nil, or the empty
// string get the "unknown" sentinel (§4.2 "Defensive defaults"), even
// where the contract declares a default for them; the substitution is
// logged as a warning when the store has a logger. Nullable columns
// missing from row are inserted as NULL, not as the contract default.
func (s *Store) Add(table string, row Row) error {
	tbl, ok := s.contract.Table(table)
	if !ok {
		return fmt.Errorf("store: table %q is not declared in the contract", table)
	}
	sanitized := s.applyDefensiveDefaults(tbl, row)
	s.batches[table] = append(s.batches[table], sanitized)
	if len(s.batches[table]) >= s.batchSize {
		return s.flushTable(tbl)
	}
	return nil
}

func (s *Store) applyDefensiveDefaults(tbl contract.Table, row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	for _, col := range tbl.Columns {
		if col.PrimaryKey && col.AutoIncr {
			continue
		}
		if !col.NotNull {
			continue
		}
		v, present := out[col.Name]
		if present && !isNilOrEmptyString(v) {
			continue
		}
		if s.logger != nil {
			s.logger.Warning("store: %s.%s received a null/empty value for a NOT NULL column; substituting sentinel \"unknown\"", tbl.Name, col.Name)
		}
		out[col.Name] = "unknown"
	}
	return out
}

func isNilOrEmptyString(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

// AddCFGBlock enqueues a cfg_blocks row and synchronously returns a
// temporary negative ID the caller uses to reference this block from
// cfg_edges/cfg_block_statements rows before the block batch is flushed
// and the real autoincrement ID is known (§4.2 "CFG ID fixup").
func (s *Store) AddCFGBlock(file, functionName, blockType string, startLine, endLine int) (int64, error) {
	s.cfgBlockSeq--
	tempID := s.cfgBlockSeq
	err := s.Add("cfg_blocks", Row{
		"id": tempID, "file": file, "function_name": functionName,
		"block_type": blockType, "start_line": startLine, "end_line": endLine,
	})
	return tempID, err
}

// FlushAll flushes every batch in the contract's declared flush order
// inside the store's open transaction; this is the only operation allowed
// to reorder writes. The CFG ID fixup pass runs between cfg_blocks and its
// dependent tables so statement/edge foreign keys are rewritten to real
// autoincrement IDs before their own insert.
func (s *Store) FlushAll() error {
	if !s.inTxn {
		return fmt.Errorf("store: FlushAll called with no open transaction")
	}
	for _, tbl := range s.contract.TablesInFlushOrder() {
		if tbl.Name == "cfg_blocks" {
			if err := s.flushCFGBlocksWithFixup(); err != nil {
				return err
			}
			continue
		}
		if err := s.flushTable(tbl); err != nil {
			return err
		}
	}
	s.cfgIDMap = nil
	return nil
}

func (s *Store) flushTable(tbl contract.Table) error {
	rows := s.batches[tbl.Name]
	if len(rows) == 0 {
		return nil
	}
	delete(s.batches, tbl.Name)

	cols := writableColumns(tbl)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	prepared, err := s.tx.Prepare(stmt)
	if err != nil {
		return fmt.Errorf("store: prepare insert for %s: %w", tbl.Name, err)
	}
	defer prepared.Close()

	for _, row := range rows {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = rewriteCFGReference(tbl.Name, c, row[c], s.cfgIDMap)
		}
		if _, err := prepared.Exec(args...); err != nil {
			return fmt.Errorf("store: insert into %s: %w (rolling back stage)", tbl.Name, err)
		}
	}
	return nil
}

// flushCFGBlocksWithFixup inserts every pending cfg_blocks row, capturing
// each row's temporary ID -> real autoincrement ID mapping in s.cfgIDMap
// so later flushes of cfg_edges/cfg_block_statements can rewrite their
// foreign keys before insert (§4.2 "CFG ID fixup").
func (s *Store) flushCFGBlocksWithFixup() error {
	tbl, _ := s.contract.Table("cfg_blocks")
	rows := s.batches[tbl.Name]
	if len(rows) == 0 {
		return nil
	}
	delete(s.batches, tbl.Name)

	if s.cfgIDMap == nil {
		s.cfgIDMap = make(map[int64]int64)
	}

	stmt, err := s.tx.Prepare(fmt.Sprintf(
		"INSERT INTO cfg_blocks (file, function_name, block_type, start_line, end_line) VALUES (?, ?, ?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("store: prepare cfg_blocks insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		tempID, _ := row["id"].(int64)
		res, err := stmt.Exec(row["file"], row["function_name"], row["block_type"], row["start_line"], row["end_line"])
		if err != nil {
			return fmt.Errorf("store: insert cfg_blocks: %w", err)
		}
		realID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("store: cfg_blocks last insert id: %w", err)
		}
		s.cfgIDMap[tempID] = realID
	}
	return nil
}

func rewriteCFGReference(table, column string, value any, idMap map[int64]int64) any {
	if idMap == nil {
		return value
	}
	switch column {
	case "source_block_id", "target_block_id", "block_id":
		if v, ok := toInt64(value); ok {
			if v < 0 {
				if real, ok := idMap[v]; ok {
					return real
				}
			}
			return v
		}
	}
	return value
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func writableColumns(tbl contract.Table) []string {
	cols := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		if c.PrimaryKey && c.AutoIncr {
			continue
		}
		cols = append(cols, c.Name)
	}
	return cols
}
