package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS namespaces (
		name TEXT PRIMARY KEY,
		created_at INTEGER
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		namespace TEXT,
		identity TEXT,
		stored_at INTEGER,
		snapshot BLOB,
		PRIMARY KEY (namespace, identity)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteStore) Open(namespace string) (Handle, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)",
		namespace, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	return sqliteHandle{store: s, namespace: namespace}, nil
}

func (s SQLiteStore) Namespaces() ([]string, error) {
	names := make([]string, 0)
	rows, err := s.db.Query("SELECT name FROM namespaces ORDER BY name")
	if err != nil {
		return names, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteStore) Delete(namespace string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	result, err := s.db.Exec("DELETE FROM namespaces WHERE name = ?", namespace)
	if err != nil {
		return false, err
	}
	if _, err := s.db.Exec("DELETE FROM entries WHERE namespace = ?", namespace); err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

type sqliteHandle struct {
	store     SQLiteStore
	namespace string
}

func (h sqliteHandle) Put(identity string, snapshot []byte) error {
	h.store.writeMutex.Lock()
	defer h.store.writeMutex.Unlock()
	// the namespace may have been deleted after opening; a put recreates it
	_, err := h.store.db.Exec("INSERT OR IGNORE INTO namespaces (name, created_at) VALUES (?, ?)",
		h.namespace, time.Now().Unix())
	if err != nil {
		return err
	}
	_, err = h.store.db.Exec(`INSERT OR REPLACE INTO entries
		(namespace, identity, stored_at, snapshot) VALUES (?, ?, ?, ?)`,
		h.namespace, identity, time.Now().Unix(), snapshot)
	return err
}

func (h sqliteHandle) Match(identity string) ([]byte, bool, error) {
	var snapshot []byte
	err := h.store.db.QueryRow(
		"SELECT snapshot FROM entries WHERE namespace = ? AND identity = ?",
		h.namespace, identity,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func (h sqliteHandle) Name() string {
	return h.namespace
}
