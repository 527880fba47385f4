package store

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		rawURL  string
		dialect string
		driver  string
		dsn     string
		wantErr bool
	}{
		{"sqlite:///smartx.db", DialectSQLite, "sqlite", "smartx.db", false},
		{"sqlite:////var/lib/smartx.db", DialectSQLite, "sqlite", "/var/lib/smartx.db", false},
		{"sqlite+aiosqlite:///smartx.db", DialectSQLite, "sqlite", "smartx.db", false},
		{"mysql://user:pw@10.0.0.5:3306/smartx", DialectMySQL, "mysql", "user:pw@tcp(10.0.0.5:3306)/smartx?parseTime=true", false},
		{"mysql+aiomysql://u@db:3306/smartx", DialectMySQL, "mysql", "u@tcp(db:3306)/smartx?parseTime=true", false},
		{"postgresql://u:p@db:5432/smartx", DialectPostgres, "postgres", "postgres://u:p@db:5432/smartx", false},
		{"postgresql+asyncpg://u:p@db/smartx", DialectPostgres, "postgres", "postgres://u:p@db/smartx", false},
		{"oracle://db/x", "", "", "", true},
		{"not-a-url", "", "", "", true},
		{"sqlite://", "", "", "", true},
	}
	for _, tt := range tests {
		dialect, driver, dsn, err := ParseURL(tt.rawURL)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseURL(%q): expected error", tt.rawURL)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseURL(%q) error = %v", tt.rawURL, err)
			continue
		}
		if dialect != tt.dialect || driver != tt.driver || dsn != tt.dsn {
			t.Errorf("ParseURL(%q) = %q %q %q, want %q %q %q",
				tt.rawURL, dialect, driver, dsn, tt.dialect, tt.driver, tt.dsn)
		}
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sqlite:///" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func (s *Store) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSaveAndPrune(t *testing.T) {
	s := openTestStore(t)
	rssi := -68

	old := tag.Tag{Timestamp: time.Now().AddDate(0, 0, -8), Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c", Ant: 1, RSSI: &rssi}
	fresh := tag.Tag{Timestamp: time.Now().AddDate(0, 0, -6), Device: "D1", EPC: "ffeeddccbbaa998877665544", Ant: 2}
	for _, tg := range []tag.Tag{old, fresh} {
		if err := s.SaveTag(tg); err != nil {
			t.Fatalf("SaveTag() error = %v", err)
		}
	}
	if err := s.SaveEvent(tag.Event{Timestamp: time.Now().AddDate(0, 0, -8), Device: "D1", EventType: "inventory", EventData: true}); err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}

	s.Prune(7)
	if n := s.count(t, "tags"); n != 1 {
		t.Errorf("tags after prune = %d, want 1", n)
	}
	if n := s.count(t, "events"); n != 0 {
		t.Errorf("events after prune = %d, want 0", n)
	}

	// idempotent
	s.Prune(7)
	if n := s.count(t, "tags"); n != 1 {
		t.Errorf("tags after second prune = %d, want 1", n)
	}
}

func TestPruneDisabled(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveTag(tag.Tag{Timestamp: time.Now().AddDate(0, -1, 0), Device: "D1", EPC: "a1b2c3d4e5f60718293a4b5c", Ant: 1}); err != nil {
		t.Fatal(err)
	}
	s.Prune(0)
	s.Prune(-3)
	if n := s.count(t, "tags"); n != 1 {
		t.Errorf("disabled prune deleted rows: %d left, want 1", n)
	}
}

func TestSaveEventTruncatesPayload(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveEvent(tag.Event{
		Timestamp: time.Now(),
		Device:    "D1",
		EventType: "raw",
		EventData: strings.Repeat("x", 500),
	})
	if err != nil {
		t.Fatalf("SaveEvent() error = %v", err)
	}
	var data string
	if err := s.db.QueryRow(`SELECT event_data FROM events`).Scan(&data); err != nil {
		t.Fatal(err)
	}
	if len(data) != eventDataMax {
		t.Errorf("event_data length = %d, want %d", len(data), eventDataMax)
	}
}

func TestWriteReport(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.SaveTag(tag.Tag{Timestamp: time.Now(), Device: "D1", EPC: fmt.Sprintf("%024x", i), Ant: 1}); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := s.WriteReport(&buf); err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	files := map[string]bool{}
	for _, f := range zr.File {
		files[f.Name] = true
	}
	if !files["tags.csv"] || !files["events.csv"] {
		t.Fatalf("zip entries = %v, want tags.csv and events.csv", files)
	}

	rc, _ := zr.Open("tags.csv")
	defer rc.Close()
	head := make([]byte, 64)
	n, _ := rc.Read(head)
	if !strings.Contains(string(head[:n]), "epc") {
		t.Errorf("tags.csv header missing epc column: %q", head[:n])
	}
}
