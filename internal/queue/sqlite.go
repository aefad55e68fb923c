// internal/queue/sqlite.go
package queue

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// 스키마 버전 (PRAGMA user_version)
//
//	1 - records 테이블
const currentSchemaVersion = 1

// SQLiteQueue
//
// 레코드를 records 테이블의 row 로 저장한다.
// id 는 단조 증가이므로 ORDER BY id = 삽입 순서.
type SQLiteQueue struct {
	db       *sql.DB
	size     int
	closed   bool
	readOnly bool
}

// OpenSQLite 는 path 의 DB 를 만들거나 열고 레코드 수를 복원한다.
func OpenSQLite(path string) (*SQLiteQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("queue: empty database path")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: connect database: %w", err)
	}

	// writer 1개 (SQLITE_BUSY 회피)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	q := &SQLiteQueue{db: db}
	if err := db.QueryRow("SELECT COUNT(*) FROM records").Scan(&q.size); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: count records: %w", err)
	}
	return q, nil
}

// OpenSQLiteReadOnly 는 들여다보기 전용으로 DB 를 연다.
// mode=ro 이므로 스키마 / pragma 를 건드리지 않고, 파일이 없으면 에러.
func OpenSQLiteReadOnly(path string) (*SQLiteQueue, error) {
	if path == "" {
		return nil, fmt.Errorf("queue: empty database path")
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	q := &SQLiteQueue{db: db, readOnly: true}
	if err := db.QueryRow("SELECT COUNT(*) FROM records").Scan(&q.size); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: count records: %w", err)
	}
	return q, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("queue: execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("queue: execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("queue: get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("queue: database schema v%d is newer than supported v%d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("queue: set user_version: %w", err)
	}
	return nil
}

func (q *SQLiteQueue) Add(record []byte) error {
	if q.closed {
		return ErrClosed
	}
	if q.readOnly {
		return ErrReadOnly
	}
	if record == nil {
		record = []byte{}
	}
	if _, err := q.db.Exec(
		"INSERT INTO records (payload, created_at) VALUES (?, ?)",
		record, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("queue: insert: %w", err)
	}
	q.size++
	return nil
}

func (q *SQLiteQueue) Size() int {
	return q.size
}

func (q *SQLiteQueue) ForEach(visit func(record []byte) (bool, error)) (int, error) {
	if q.closed {
		return 0, ErrClosed
	}

	visited := 0
	var lastID int64
	for {
		// ---- 1) 한 페이지 읽기 ----
		// 커넥션이 하나뿐이므로 visit 전에 커서를 닫는다.
		page, err := q.readPage(lastID)
		if err != nil {
			return visited, err
		}
		if len(page) == 0 {
			return visited, nil
		}

		// ---- 2) 페이지 방문 ----
		for _, row := range page {
			visited++
			more, err := visit(row.payload)
			if err != nil {
				return visited, err
			}
			if !more {
				return visited, nil
			}
			lastID = row.id
		}

		if len(page) < forEachPageSize {
			return visited, nil
		}
	}
}

// forEachPageSize 는 ForEach 가 한 번에 읽는 행 수.
const forEachPageSize = 64

type pageRow struct {
	id      int64
	payload []byte
}

// readPage 는 afterID 다음부터 최대 forEachPageSize 행을 읽는다.
func (q *SQLiteQueue) readPage(afterID int64) ([]pageRow, error) {
	rows, err := q.db.Query(
		"SELECT id, payload FROM records WHERE id > ? ORDER BY id LIMIT ?",
		afterID, forEachPageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("queue: select: %w", err)
	}
	defer rows.Close()

	page := make([]pageRow, 0, forEachPageSize)
	for rows.Next() {
		var r pageRow
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			return nil, fmt.Errorf("queue: scan: %w", err)
		}
		page = append(page, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: iterate: %w", err)
	}
	return page, nil
}

func (q *SQLiteQueue) Remove(n int) error {
	if q.closed {
		return ErrClosed
	}
	if q.readOnly {
		return ErrReadOnly
	}
	if n <= 0 {
		return nil
	}
	res, err := q.db.Exec(
		"DELETE FROM records WHERE id IN (SELECT id FROM records ORDER BY id LIMIT ?)", n,
	)
	if err != nil {
		return fmt.Errorf("queue: delete: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil {
		q.size -= int(affected)
	} else {
		q.size -= n
	}
	if q.size < 0 {
		q.size = 0
	}
	return nil
}

func (q *SQLiteQueue) Close() error {
	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}
