package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

// sortableTime is fixed-width so TEXT columns order chronologically
const sortableTime = "2006-01-02T15:04:05.000000000Z"

const (
	metaTheme      = "theme"
	metaCreatedAt  = "created_at"
	metaLastUpdate = "last_update"
)

// SQLiteStore keeps each citizen and interaction as a JSON row, with the
// secondary indexes maintained as SQL indexes. Every upsert is one transaction.
type SQLiteStore struct {
	mu     sync.RWMutex
	dbPath string
	db     *sqlx.DB
	log    *logger.Logger
}

type docRow struct {
	Doc string `db:"doc"`
}

// NewSQLiteStore creates a SQLite storage. Call Load before use.
func NewSQLiteStore(dbPath string, log *logger.Logger) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath, log: log}
}

func (s *SQLiteStore) open() error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", s.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database tables: %w", err)
	}
	s.db = db
	return nil
}

// Load opens the database. A file that is not a usable database is moved
// aside and a fresh one is created with default metadata.
func (s *SQLiteStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		s.db.Close()
		s.db = nil
	}

	if err := s.open(); err != nil {
		if _, statErr := os.Stat(s.dbPath); statErr != nil {
			return model.NewPersistenceError("load", s.dbPath, err)
		}
		aside := fmt.Sprintf("%s.corrupt-%d", s.dbPath, time.Now().Unix())
		s.log.Warn("database %s unusable (%v), reinitialising; previous file kept at %s", s.dbPath, err, aside)
		if rerr := os.Rename(s.dbPath, aside); rerr != nil {
			return model.NewPersistenceError("load", s.dbPath, rerr)
		}
		if err := s.open(); err != nil {
			return model.NewPersistenceError("load", s.dbPath, err)
		}
	}

	if err := s.ensureMetadata(); err != nil {
		return model.NewPersistenceError("load", s.dbPath, err)
	}

	var citizens, interactions int
	s.db.Get(&citizens, "SELECT COUNT(*) FROM citizens")
	s.db.Get(&interactions, "SELECT COUNT(*) FROM interactions")
	s.log.Info("loaded %d citizens and %d interactions from %s", citizens, interactions, s.dbPath)
	return nil
}

func migrate(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS citizens (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL DEFAULT '',
		occupation TEXT NOT NULL,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interaction_participants (
		interaction_id TEXT NOT NULL,
		citizen_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (interaction_id, citizen_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_citizens_occupation ON citizens(occupation);
	CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_participants_citizen ON interaction_participants(citizen_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	if err := addNameKey(db); err != nil {
		return err
	}
	_, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_citizens_name_key ON citizens(name_key)")
	return err
}

// addNameKey upgrades databases created before name_key existed and fills
// the key for rows that lack one. SQLite's NOCASE only folds ASCII, so
// names are matched on a key computed in Go instead.
func addNameKey(db *sqlx.DB) error {
	var cols []struct {
		Name string `db:"name"`
	}
	if err := db.Select(&cols, "SELECT name FROM pragma_table_info('citizens')"); err != nil {
		return err
	}
	has := false
	for _, c := range cols {
		if c.Name == "name_key" {
			has = true
		}
	}
	if !has {
		if _, err := db.Exec("ALTER TABLE citizens ADD COLUMN name_key TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}

	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	if err := db.Select(&rows, "SELECT id, name FROM citizens WHERE name_key = ''"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := db.Exec("UPDATE citizens SET name_key = ? WHERE id = ?", nameKey(r.Name), r.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ensureMetadata() error {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM meta WHERE key = ?", metaTheme); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	def := model.DefaultMetadata()
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := setMeta(tx, metaTheme, def.Theme); err != nil {
		return err
	}
	if err := setMeta(tx, metaCreatedAt, def.CreatedAt.UTC().Format(sortableTime)); err != nil {
		return err
	}
	if err := touch(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func setMeta(tx *sqlx.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func touch(tx *sqlx.Tx) error {
	return setMeta(tx, metaLastUpdate, time.Now().UTC().Format(sortableTime))
}

func (s *SQLiteStore) getMeta(key string) (string, error) {
	var value string
	err := s.db.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) persistErr(op string, err error) error {
	return model.NewPersistenceError(op, s.dbPath, err)
}

// Upsert inserts or replaces a citizen
func (s *SQLiteStore) Upsert(c *model.Citizen) error {
	return s.UpsertMany(c)
}

// UpsertMany writes several citizens in one transaction
func (s *SQLiteStore) UpsertMany(cs ...*model.Citizen) error {
	for _, c := range cs {
		if err := validateCitizen(c); err != nil {
			return err
		}
	}
	if len(cs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return s.persistErr("upsert", err)
	}
	defer tx.Rollback()

	if err := putCitizensTx(tx, cs); err != nil {
		return s.persistErr("upsert", err)
	}
	if err := touch(tx); err != nil {
		return s.persistErr("upsert", err)
	}
	if err := tx.Commit(); err != nil {
		return s.persistErr("upsert", err)
	}
	return nil
}

func putCitizensTx(tx *sqlx.Tx, cs []*model.Citizen) error {
	stmt, err := tx.Preparex(`INSERT INTO citizens (id, name, name_key, occupation, created_at, doc)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_key = excluded.name_key,
			occupation = excluded.occupation,
			doc = excluded.doc`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cs {
		doc, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode citizen %s: %w", c.ID, err)
		}
		if _, err := stmt.Exec(c.ID, c.Name, nameKey(c.Name), c.Occupation, c.CreatedAt.UTC().Format(sortableTime), string(doc)); err != nil {
			return err
		}
	}
	return nil
}

func putInteractionTx(tx *sqlx.Tx, i *model.Interaction) error {
	doc, err := json.Marshal(i)
	if err != nil {
		return fmt.Errorf("failed to encode interaction %s: %w", i.ID, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO interactions (id, created_at, doc) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET created_at = excluded.created_at, doc = excluded.doc`,
		i.ID, i.CreatedAt.UTC().Format(sortableTime), string(doc),
	); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM interaction_participants WHERE interaction_id = ?", i.ID); err != nil {
		return err
	}
	for pos, p := range i.Participants {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO interaction_participants (interaction_id, citizen_id, position) VALUES (?, ?, ?)",
			i.ID, p, pos,
		); err != nil {
			return err
		}
	}
	return nil
}

func decodeCitizen(doc string) (*model.Citizen, error) {
	var c model.Citizen
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode citizen: %w", err)
	}
	return &c, nil
}

// Get returns the citizen
func (s *SQLiteStore) Get(id string) (*model.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row docRow
	err := s.db.Get(&row, "SELECT doc FROM citizens WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("citizen %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, s.persistErr("get", err)
	}
	return decodeCitizen(row.Doc)
}

func (s *SQLiteStore) selectCitizens(query string, args ...any) ([]*model.Citizen, error) {
	var rows []docRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, s.persistErr("list", err)
	}
	out := make([]*model.Citizen, 0, len(rows))
	for _, r := range rows {
		c, err := decodeCitizen(r.Doc)
		if err != nil {
			return nil, s.persistErr("list", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// List returns every citizen, oldest first
func (s *SQLiteStore) List() ([]*model.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectCitizens("SELECT doc FROM citizens ORDER BY created_at, id")
}

// FindByName does a case-insensitive exact match on the name
func (s *SQLiteStore) FindByName(name string) (*model.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, err := s.selectCitizens(
		"SELECT doc FROM citizens WHERE name_key = ? ORDER BY created_at, id LIMIT 1",
		nameKey(name),
	)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, fmt.Errorf("citizen %q: %w", name, model.ErrNotFound)
	}
	return cs[0], nil
}

// ListByOccupation returns ids of citizens with the occupation
func (s *SQLiteStore) ListByOccupation(occupation string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	err := s.db.Select(&ids,
		"SELECT id FROM citizens WHERE occupation = ? COLLATE NOCASE ORDER BY created_at, id",
		occupation,
	)
	if err != nil {
		return nil, s.persistErr("list_by_occupation", err)
	}
	return ids, nil
}

// UpsertInteraction stores an interaction and its participant index rows
func (s *SQLiteStore) UpsertInteraction(i *model.Interaction) error {
	if err := validateInteraction(i); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return s.persistErr("upsert_interaction", err)
	}
	defer tx.Rollback()

	if err := putInteractionTx(tx, i); err != nil {
		return s.persistErr("upsert_interaction", err)
	}
	if err := touch(tx); err != nil {
		return s.persistErr("upsert_interaction", err)
	}
	if err := tx.Commit(); err != nil {
		return s.persistErr("upsert_interaction", err)
	}
	return nil
}

// SaveInteraction writes the interaction, its participant rows and the
// participants in one transaction
func (s *SQLiteStore) SaveInteraction(i *model.Interaction, participants ...*model.Citizen) error {
	if err := validateInteraction(i); err != nil {
		return err
	}
	for _, c := range participants {
		if err := validateCitizen(c); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return s.persistErr("save_interaction", err)
	}
	defer tx.Rollback()

	if err := putCitizensTx(tx, participants); err != nil {
		return s.persistErr("save_interaction", err)
	}
	if err := putInteractionTx(tx, i); err != nil {
		return s.persistErr("save_interaction", err)
	}
	if err := touch(tx); err != nil {
		return s.persistErr("save_interaction", err)
	}
	if err := tx.Commit(); err != nil {
		return s.persistErr("save_interaction", err)
	}
	return nil
}

func decodeInteraction(doc string) (*model.Interaction, error) {
	var i model.Interaction
	if err := json.Unmarshal([]byte(doc), &i); err != nil {
		return nil, fmt.Errorf("failed to decode interaction: %w", err)
	}
	return &i, nil
}

// GetInteraction returns the interaction
func (s *SQLiteStore) GetInteraction(id string) (*model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row docRow
	err := s.db.Get(&row, "SELECT doc FROM interactions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("interaction %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, s.persistErr("get_interaction", err)
	}
	return decodeInteraction(row.Doc)
}

// ListInteractions returns every interaction, oldest first
func (s *SQLiteStore) ListInteractions() ([]*model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []docRow
	if err := s.db.Select(&rows, "SELECT doc FROM interactions ORDER BY created_at, id"); err != nil {
		return nil, s.persistErr("list_interactions", err)
	}
	out := make([]*model.Interaction, 0, len(rows))
	for _, r := range rows {
		i, err := decodeInteraction(r.Doc)
		if err != nil {
			return nil, s.persistErr("list_interactions", err)
		}
		out = append(out, i)
	}
	return out, nil
}

// ListByParticipant returns interaction ids the citizen took part in
func (s *SQLiteStore) ListByParticipant(citizenID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := []string{}
	err := s.db.Select(&ids,
		`SELECT p.interaction_id FROM interaction_participants p
		 JOIN interactions i ON i.id = p.interaction_id
		 WHERE p.citizen_id = ?
		 ORDER BY i.created_at, i.id`,
		citizenID,
	)
	if err != nil {
		return nil, s.persistErr("list_by_participant", err)
	}
	return ids, nil
}

// ListByDate returns interaction ids created on the given UTC day
func (s *SQLiteStore) ListByDate(day time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	y, m, d := day.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	ids := []string{}
	err := s.db.Select(&ids,
		"SELECT id FROM interactions WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id",
		start.Format(sortableTime), start.AddDate(0, 0, 1).Format(sortableTime),
	)
	if err != nil {
		return nil, s.persistErr("list_by_date", err)
	}
	return ids, nil
}

// Metadata returns the city metadata
func (s *SQLiteStore) Metadata() (model.CityMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata()
}

func (s *SQLiteStore) metadata() (model.CityMetadata, error) {
	theme, err := s.getMeta(metaTheme)
	if err != nil {
		return model.CityMetadata{}, s.persistErr("metadata", err)
	}
	created, err := s.getMeta(metaCreatedAt)
	if err != nil {
		return model.CityMetadata{}, s.persistErr("metadata", err)
	}
	meta := model.CityMetadata{Theme: theme}
	if t, err := time.Parse(sortableTime, created); err == nil {
		meta.CreatedAt = t
	}
	if meta.Theme == "" {
		meta.Theme = model.DefaultTheme
	}
	return meta, nil
}

// SetMetadata overwrites the city metadata
func (s *SQLiteStore) SetMetadata(meta model.CityMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return s.persistErr("set_metadata", err)
	}
	defer tx.Rollback()

	if err := setMeta(tx, metaTheme, meta.Theme); err != nil {
		return s.persistErr("set_metadata", err)
	}
	if !meta.CreatedAt.IsZero() {
		if err := setMeta(tx, metaCreatedAt, meta.CreatedAt.UTC().Format(sortableTime)); err != nil {
			return s.persistErr("set_metadata", err)
		}
	}
	if err := touch(tx); err != nil {
		return s.persistErr("set_metadata", err)
	}
	if err := tx.Commit(); err != nil {
		return s.persistErr("set_metadata", err)
	}
	return nil
}

// Stats summarises the dataset
func (s *SQLiteStore) Stats() (Stats, error) {
	cs, err := s.List()
	if err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, err := s.metadata()
	if err != nil {
		return Stats{}, err
	}
	var interactions int
	if err := s.db.Get(&interactions, "SELECT COUNT(*) FROM interactions"); err != nil {
		return Stats{}, s.persistErr("stats", err)
	}
	var last time.Time
	if v, err := s.getMeta(metaLastUpdate); err == nil {
		last, _ = time.Parse(sortableTime, v)
	}
	return statsFrom(cs, interactions, meta, last), nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

var _ Store = (*SQLiteStore)(nil)
