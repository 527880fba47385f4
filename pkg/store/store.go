// Package store persists tag reads and events behind database/sql. The
// engine is chosen from DATABASE_URL: sqlite, mysql, or postgresql, each
// optionally carrying an async driver suffix that is stripped.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// Dialect names accepted in DATABASE_URL.
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgresql"
)

const eventDataMax = 200

// Store is a SQL-backed recorder for the tags and events tables.
type Store struct {
	db      *sql.DB
	dialect string
}

// ParseURL splits a DATABASE_URL into sql.Open arguments. Async driver
// suffixes (sqlite+aiosqlite, mysql+aiomysql, postgresql+asyncpg) are
// stripped so the same URL works for schema creation.
func ParseURL(rawURL string) (dialect, driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return "", "", "", util.NewConfigError("DATABASE_URL", "missing scheme")
	}
	scheme, _, _ = strings.Cut(scheme, "+")

	switch scheme {
	case DialectSQLite:
		// sqlite:///rel.db is relative, sqlite:////abs.db is absolute.
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return "", "", "", util.NewConfigError("DATABASE_URL", "missing sqlite path")
		}
		return DialectSQLite, "sqlite", path, nil

	case DialectMySQL:
		u, err := url.Parse("mysql://" + rest)
		if err != nil {
			return "", "", "", util.NewConfigError("DATABASE_URL", err.Error())
		}
		auth := u.User.Username()
		if pw, ok := u.User.Password(); ok {
			auth += ":" + pw
		}
		dsn := fmt.Sprintf("%s@tcp(%s)%s?parseTime=true", auth, u.Host, u.Path)
		return DialectMySQL, "mysql", dsn, nil

	case DialectPostgres, "postgres":
		return DialectPostgres, "postgres", "postgres://" + rest, nil
	}
	return "", "", "", util.NewConfigError("DATABASE_URL", "unsupported dialect "+scheme)
}

// Open connects the engine and creates the schema. A reachable engine with
// an unusable schema is treated as fatal for the subsystem; the caller
// keeps running without persistence.
func Open(rawURL string) (*Store, error) {
	dialect, driver, dsn, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, dialect: dialect}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	for _, stmt := range s.schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			// MySQL has no IF NOT EXISTS for indexes; a duplicate
			// index on re-open is not a failure.
			if strings.HasPrefix(strings.TrimSpace(stmt), "CREATE INDEX") {
				util.Debugf("index: %v", err)
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Store) schema() []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	ifNotExists := "IF NOT EXISTS "
	switch s.dialect {
	case DialectMySQL:
		id = "INTEGER PRIMARY KEY AUTO_INCREMENT"
		ifNotExists = ""
	case DialectPostgres:
		id = "SERIAL PRIMARY KEY"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tags (
			id %s,
			timestamp TIMESTAMP,
			device VARCHAR(50),
			epc VARCHAR(24),
			tid VARCHAR(24),
			ant INTEGER,
			rssi INTEGER,
			gtin VARCHAR(24)
		)`, id),
		`CREATE INDEX ` + ifNotExists + `ix_tags_device ON tags (device)`,
		`CREATE INDEX ` + ifNotExists + `ix_tags_epc ON tags (epc)`,
		`CREATE INDEX ` + ifNotExists + `ix_tags_gtin ON tags (gtin)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS events (
			id %s,
			timestamp TIMESTAMP,
			device VARCHAR(50),
			event_type VARCHAR(50),
			event_data VARCHAR(200)
		)`, id),
		`CREATE INDEX ` + ifNotExists + `ix_events_device ON events (device)`,
		`CREATE INDEX ` + ifNotExists + `ix_events_event_type ON events (event_type)`,
	}
	return stmts
}

// rebind rewrites ? placeholders for engines that use numbered parameters.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveTag inserts one tag read. Fields beyond the schema are dropped.
func (s *Store) SaveTag(t tag.Tag) error {
	_, err := s.db.Exec(
		s.rebind(`INSERT INTO tags (timestamp, device, epc, tid, ant, rssi, gtin) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		t.Timestamp, t.Device, t.EPC, t.TID, t.Ant, t.RSSI, t.GTIN,
	)
	return err
}

// SaveEvent inserts one event, serializing the payload to JSON bounded to
// the column width.
func (s *Store) SaveEvent(e tag.Event) error {
	data, err := json.Marshal(e.EventData)
	if err != nil {
		data = []byte(fmt.Sprintf("%q", fmt.Sprint(e.EventData)))
	}
	payload := string(data)
	if len(payload) > eventDataMax {
		payload = payload[:eventDataMax]
	}
	_, err = s.db.Exec(
		s.rebind(`INSERT INTO events (timestamp, device, event_type, event_data) VALUES (?, ?, ?, ?)`),
		e.Timestamp, e.Device, e.EventType, payload,
	)
	return err
}

// Prune deletes rows older than the retention window from every table with
// a timestamp column. A failure in one table is logged and does not abort
// the others.
func (s *Store) Prune(days int) {
	if days <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	for _, table := range []string{"tags", "events"} {
		res, err := s.db.Exec(s.rebind(`DELETE FROM `+table+` WHERE timestamp < ?`), cutoff)
		if err != nil {
			util.Errorf("pruning %s: %v", table, err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			util.Infof("pruned %d rows from %s", n, table)
		}
	}
}
