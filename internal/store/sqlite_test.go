package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/hession/citysim/internal/model"
)

func setupTestDB(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s := NewSQLiteStore(dbPath, nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s, dbPath
}

func TestSQLiteStore_CorruptRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "broken.db")
	garbage := []byte(strings.Repeat("this is not a sqlite database. ", 64))
	if err := os.WriteFile(dbPath, garbage, 0644); err != nil {
		t.Fatal(err)
	}

	s := NewSQLiteStore(dbPath, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("corrupt database should be recovered, got %v", err)
	}
	defer s.Close()

	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty dataset, got %d", len(list))
	}
	if meta, _ := s.Metadata(); meta.Theme != model.DefaultTheme {
		t.Errorf("expected default theme, got %q", meta.Theme)
	}
	aside, _ := filepath.Glob(dbPath + ".corrupt-*")
	if len(aside) != 1 {
		t.Errorf("expected corrupt database kept aside, found %v", aside)
	}
}

func TestSQLiteStore_ParticipantRows(t *testing.T) {
	s, _ := setupTestDB(t)

	i := &model.Interaction{ID: "i1", Participants: []string{"a", "b", "c"}}
	if err := s.UpsertInteraction(i); err != nil {
		t.Fatal(err)
	}
	i.Participants = []string{"a", "b"}
	if err := s.UpsertInteraction(i); err != nil {
		t.Fatal(err)
	}

	var rows int
	if err := s.db.Get(&rows, "SELECT COUNT(*) FROM interaction_participants WHERE interaction_id = ?", "i1"); err != nil {
		t.Fatal(err)
	}
	if rows != 2 {
		t.Errorf("participant rows should be replaced on upsert, got %d", rows)
	}
	if ids, _ := s.ListByParticipant("c"); len(ids) != 0 {
		t.Errorf("c should no longer be indexed, got %v", ids)
	}
}

func TestSQLiteStore_ClosedIsPersistenceError(t *testing.T) {
	s, _ := setupTestDB(t)
	s.db.Close()

	err := s.Upsert(newCitizen("Ada Obi", "engineer", 40))
	if !model.IsPersistence(err) {
		t.Errorf("expected PersistenceError, got %v", err)
	}
}

func TestSQLiteStore_SaveInteractionRollsBack(t *testing.T) {
	s, _ := setupTestDB(t)
	a := newCitizen("Ada Obi", "engineer", 40)
	b := newCitizen("Lin Park", "chef", 31)
	if err := s.UpsertMany(a, b); err != nil {
		t.Fatal(err)
	}

	// Participant rows are written last, so failing them exercises the rollback of everything before
	if _, err := s.db.Exec(`CREATE TRIGGER block_participants BEFORE INSERT ON interaction_participants
		BEGIN SELECT RAISE(ABORT, 'blocked'); END`); err != nil {
		t.Fatal(err)
	}

	a.Memories = append(a.Memories, model.NewMemory("Talked with Lin", []string{b.ID}, 0.5, model.MemoryInteraction))
	i := &model.Interaction{ID: "i1", Participants: []string{a.ID, b.ID}}
	if err := s.SaveInteraction(i, a, b); !model.IsPersistence(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	if _, err := s.GetInteraction("i1"); !model.IsNotFound(err) {
		t.Errorf("interaction should not exist, got %v", err)
	}
	if ids, _ := s.ListByParticipant(a.ID); len(ids) != 0 {
		t.Errorf("participant index should be empty, got %v", ids)
	}
	if got, _ := s.Get(a.ID); len(got.Memories) != 0 {
		t.Error("participant update should have been rolled back")
	}
}

func TestSQLiteStore_NameKeyMigration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	old, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	c := newCitizen("Zoë Brandt", "baker", 52)
	doc, _ := json.Marshal(c)
	_, err = old.Exec(`CREATE TABLE citizens (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		occupation TEXT NOT NULL,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	)`)
	if err == nil {
		_, err = old.Exec("INSERT INTO citizens (id, name, occupation, created_at, doc) VALUES (?, ?, ?, ?, ?)",
			c.ID, c.Name, c.Occupation, c.CreatedAt.UTC().Format(sortableTime), string(doc))
	}
	old.Close()
	if err != nil {
		t.Fatal(err)
	}

	s := NewSQLiteStore(dbPath, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("old schema should migrate, got %v", err)
	}
	defer s.Close()

	got, err := s.FindByName("ZOË BRANDT")
	if err != nil || got.ID != c.ID {
		t.Errorf("migrated row should match by name key, got %v %v", got, err)
	}
}
