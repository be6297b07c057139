package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/model"
)

const (
	charactersFile   = "characters.json"
	interactionsFile = "interactions.json"
	documentVersion  = "1.0"
)

// docMetadata is the metadata block of a persisted document
type docMetadata struct {
	LastUpdate time.Time `json:"lastUpdate"`
	Version    string    `json:"version"`
	Count      int       `json:"count"`
	Theme      string    `json:"theme,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type charactersDoc struct {
	Data    map[string]*model.Citizen `json:"data"`
	Indexes struct {
		ByOccupation index `json:"byOccupation"`
	} `json:"indexes"`
	Metadata docMetadata `json:"metadata"`
}

type interactionsDoc struct {
	Data    map[string]*model.Interaction `json:"data"`
	Indexes struct {
		ByParticipant index `json:"byParticipant"`
		ByDate        index `json:"byDate"`
	} `json:"indexes"`
	Metadata docMetadata `json:"metadata"`
}

// characterState is swapped wholesale after a successful write
type characterState struct {
	data         map[string]*model.Citizen
	byOccupation index
	meta         docMetadata
}

type interactionState struct {
	data          map[string]*model.Interaction
	byParticipant index
	byDate        index
	meta          docMetadata
}

// JSONStore keeps the dataset in memory and rewrites one JSON document per
// collection on every mutation.
type JSONStore struct {
	mu           sync.RWMutex
	dir          string
	chars        characterState
	interactions interactionState
	log          *logger.Logger
}

// NewJSONStore creates a store rooted at dir. Call Load before use.
func NewJSONStore(dir string, log *logger.Logger) *JSONStore {
	return &JSONStore{
		dir:          dir,
		chars:        emptyCharacters(model.DefaultMetadata()),
		interactions: emptyInteractions(),
		log:          log,
	}
}

func emptyCharacters(meta model.CityMetadata) characterState {
	return characterState{
		data:         make(map[string]*model.Citizen),
		byOccupation: make(index),
		meta: docMetadata{
			Version:   documentVersion,
			Theme:     meta.Theme,
			CreatedAt: meta.CreatedAt,
		},
	}
}

func emptyInteractions() interactionState {
	return interactionState{
		data:          make(map[string]*model.Interaction),
		byParticipant: make(index),
		byDate:        make(index),
		meta:          docMetadata{Version: documentVersion},
	}
}

func (s *JSONStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Load reads both documents. Missing or corrupt documents are replaced by an
// empty dataset with default metadata, which is written out immediately.
func (s *JSONStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return model.NewPersistenceError("load", s.dir, err)
	}

	var cdoc charactersDoc
	cfound, err := s.readDoc(charactersFile, &cdoc)
	if err != nil {
		return err
	}
	var idoc interactionsDoc
	ifound, err := s.readDoc(interactionsFile, &idoc)
	if err != nil {
		return err
	}

	if cfound {
		s.chars = charactersFromDoc(&cdoc)
	} else {
		s.chars = emptyCharacters(model.DefaultMetadata())
		if err := s.writeCharacters(s.chars); err != nil {
			return err
		}
	}

	if ifound {
		s.interactions = interactionsFromDoc(&idoc)
	} else {
		s.interactions = emptyInteractions()
		if err := s.writeInteractions(s.interactions); err != nil {
			return err
		}
	}

	s.log.Info("loaded %d citizens and %d interactions from %s",
		len(s.chars.data), len(s.interactions.data), s.dir)
	return nil
}

// readDoc reports found=false when the document is missing or unparsable.
// A corrupt document is moved aside so it is not silently overwritten.
func (s *JSONStore) readDoc(name string, v any) (bool, error) {
	p := s.path(name)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Info("%s not found, initialising empty dataset", name)
		return false, nil
	}
	if err != nil {
		return false, model.NewPersistenceError("load", p, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", p, time.Now().Unix())
		if rerr := os.Rename(p, aside); rerr != nil {
			s.log.Warn("failed to move corrupt %s aside: %v", name, rerr)
		}
		s.log.Warn("%s is corrupt (%v), reinitialising; previous file kept at %s", name, err, aside)
		return false, nil
	}
	return true, nil
}

func charactersFromDoc(doc *charactersDoc) characterState {
	st := characterState{
		data:         make(map[string]*model.Citizen, len(doc.Data)),
		byOccupation: make(index),
		meta:         doc.Metadata,
	}
	if st.meta.Theme == "" {
		st.meta.Theme = model.DefaultTheme
	}
	if st.meta.CreatedAt.IsZero() {
		st.meta.CreatedAt = time.Now().UTC()
	}
	// Indexes are rebuilt from data so a stale index can never leak out
	cs := make([]*model.Citizen, 0, len(doc.Data))
	for id, c := range doc.Data {
		if c == nil {
			continue
		}
		if c.ID == "" {
			c.ID = id
		}
		cs = append(cs, c)
	}
	sortCitizens(cs)
	for _, c := range cs {
		st.data[c.ID] = c
		st.byOccupation.add(c.Occupation, c.ID)
	}
	st.meta.Count = len(st.data)
	return st
}

func interactionsFromDoc(doc *interactionsDoc) interactionState {
	st := emptyInteractions()
	st.meta = doc.Metadata
	is := make([]*model.Interaction, 0, len(doc.Data))
	for id, i := range doc.Data {
		if i == nil {
			continue
		}
		if i.ID == "" {
			i.ID = id
		}
		is = append(is, i)
	}
	sortInteractions(is)
	for _, i := range is {
		st.data[i.ID] = i
		indexInteraction(&st, i)
	}
	st.meta.Count = len(st.data)
	return st
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func indexInteraction(st *interactionState, i *model.Interaction) {
	for _, p := range i.Participants {
		st.byParticipant.add(p, i.ID)
	}
	st.byDate.add(dateKey(i.CreatedAt), i.ID)
}

func unindexInteraction(st *interactionState, i *model.Interaction) {
	for _, p := range i.Participants {
		st.byParticipant.remove(p, i.ID)
	}
	st.byDate.remove(dateKey(i.CreatedAt), i.ID)
}

func (st characterState) clone() characterState {
	out := characterState{
		data:         make(map[string]*model.Citizen, len(st.data)+1),
		byOccupation: st.byOccupation.clone(),
		meta:         st.meta,
	}
	for k, v := range st.data {
		out.data[k] = v
	}
	return out
}

func (st interactionState) clone() interactionState {
	out := interactionState{
		data:          make(map[string]*model.Interaction, len(st.data)+1),
		byParticipant: st.byParticipant.clone(),
		byDate:        st.byDate.clone(),
		meta:          st.meta,
	}
	for k, v := range st.data {
		out.data[k] = v
	}
	return out
}

func (s *JSONStore) writeCharacters(st characterState) error {
	doc := charactersDoc{Data: st.data, Metadata: st.meta}
	doc.Indexes.ByOccupation = st.byOccupation
	doc.Metadata.Count = len(st.data)
	doc.Metadata.LastUpdate = time.Now().UTC()
	return s.writeDoc(charactersFile, &doc)
}

func (s *JSONStore) writeInteractions(st interactionState) error {
	doc := interactionsDoc{Data: st.data, Metadata: st.meta}
	doc.Indexes.ByParticipant = st.byParticipant
	doc.Indexes.ByDate = st.byDate
	doc.Metadata.Count = len(st.data)
	doc.Metadata.LastUpdate = time.Now().UTC()
	return s.writeDoc(interactionsFile, &doc)
}

func (s *JSONStore) writeDoc(name string, doc any) error {
	p := s.path(name)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return model.NewPersistenceError("encode", p, err)
	}
	if err := writeFileAtomic(p, data, 0644); err != nil {
		return model.NewPersistenceError("save", p, err)
	}
	return nil
}

// commitCharacters persists next and only then makes it visible
func (s *JSONStore) commitCharacters(next characterState) error {
	next.meta.Count = len(next.data)
	next.meta.LastUpdate = time.Now().UTC()
	if err := s.writeCharacters(next); err != nil {
		return err
	}
	s.chars = next
	return nil
}

// Upsert inserts or replaces a citizen
func (s *JSONStore) Upsert(c *model.Citizen) error {
	return s.UpsertMany(c)
}

// UpsertMany writes several citizens with a single document rewrite
func (s *JSONStore) UpsertMany(cs ...*model.Citizen) error {
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

	next := s.chars.clone()
	putCitizens(&next, cs)
	return s.commitCharacters(next)
}

func putCitizens(st *characterState, cs []*model.Citizen) {
	for _, c := range cs {
		if old, ok := st.data[c.ID]; ok {
			st.byOccupation.remove(old.Occupation, c.ID)
		}
		st.data[c.ID] = c.Clone()
		st.byOccupation.add(c.Occupation, c.ID)
	}
	st.meta.Count = len(st.data)
	st.meta.LastUpdate = time.Now().UTC()
}

func putInteraction(st *interactionState, i *model.Interaction) {
	if old, ok := st.data[i.ID]; ok {
		unindexInteraction(st, old)
	}
	cp := i.Clone()
	st.data[i.ID] = cp
	indexInteraction(st, cp)
	st.meta.Count = len(st.data)
	st.meta.LastUpdate = time.Now().UTC()
}

// Get returns a copy of the citizen
func (s *JSONStore) Get(id string) (*model.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chars.data[id]
	if !ok {
		return nil, fmt.Errorf("citizen %s: %w", id, model.ErrNotFound)
	}
	return c.Clone(), nil
}

// List returns copies of every citizen, oldest first
func (s *JSONStore) List() ([]*model.Citizen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Citizen, 0, len(s.chars.data))
	for _, c := range s.chars.data {
		out = append(out, c.Clone())
	}
	sortCitizens(out)
	return out, nil
}

// FindByName does a case-insensitive exact match on the name
func (s *JSONStore) FindByName(name string) (*model.Citizen, error) {
	key := nameKey(name)
	cs, _ := s.List()
	for _, c := range cs {
		if nameKey(c.Name) == key {
			return c, nil
		}
	}
	return nil, fmt.Errorf("citizen %q: %w", name, model.ErrNotFound)
}

// ListByOccupation returns ids of citizens with the occupation
func (s *JSONStore) ListByOccupation(occupation string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ids := s.chars.byOccupation.get(occupation); len(ids) > 0 {
		return ids, nil
	}
	for key := range s.chars.byOccupation {
		if strings.EqualFold(key, occupation) {
			return s.chars.byOccupation.get(key), nil
		}
	}
	return []string{}, nil
}

// UpsertInteraction stores an interaction record
func (s *JSONStore) UpsertInteraction(i *model.Interaction) error {
	if err := validateInteraction(i); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.interactions.clone()
	putInteraction(&next, i)
	if err := s.writeInteractions(next); err != nil {
		return err
	}
	s.interactions = next
	return nil
}

// SaveInteraction rewrites both documents. If the interactions document
// cannot be written the previous characters document is put back, and the
// in-memory dataset only changes once both writes succeeded.
func (s *JSONStore) SaveInteraction(i *model.Interaction, participants ...*model.Citizen) error {
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

	chars := s.chars.clone()
	putCitizens(&chars, participants)
	interactions := s.interactions.clone()
	putInteraction(&interactions, i)

	if err := s.writeCharacters(chars); err != nil {
		return err
	}
	if err := s.writeInteractions(interactions); err != nil {
		if rerr := s.writeCharacters(s.chars); rerr != nil {
			s.log.Error("failed to restore %s after interaction %s was not saved: %v", charactersFile, i.ID, rerr)
		}
		return err
	}
	s.chars = chars
	s.interactions = interactions
	return nil
}

// GetInteraction returns a copy of the interaction
func (s *JSONStore) GetInteraction(id string) (*model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.interactions.data[id]
	if !ok {
		return nil, fmt.Errorf("interaction %s: %w", id, model.ErrNotFound)
	}
	return i.Clone(), nil
}

// ListInteractions returns copies of every interaction, oldest first
func (s *JSONStore) ListInteractions() ([]*model.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Interaction, 0, len(s.interactions.data))
	for _, i := range s.interactions.data {
		out = append(out, i.Clone())
	}
	sortInteractions(out)
	return out, nil
}

// ListByParticipant returns interaction ids the citizen took part in
func (s *JSONStore) ListByParticipant(citizenID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interactions.byParticipant.get(citizenID), nil
}

// ListByDate returns interaction ids created on the given UTC day
func (s *JSONStore) ListByDate(day time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interactions.byDate.get(dateKey(day)), nil
}

// Metadata returns the city metadata
func (s *JSONStore) Metadata() (model.CityMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CityMetadata{Theme: s.chars.meta.Theme, CreatedAt: s.chars.meta.CreatedAt}, nil
}

// SetMetadata overwrites the city metadata
func (s *JSONStore) SetMetadata(meta model.CityMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.chars.clone()
	next.meta.Theme = meta.Theme
	if !meta.CreatedAt.IsZero() {
		next.meta.CreatedAt = meta.CreatedAt
	}
	return s.commitCharacters(next)
}

// Stats summarises the dataset
func (s *JSONStore) Stats() (Stats, error) {
	cs, _ := s.List()
	meta, _ := s.Metadata()

	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.chars.meta.LastUpdate
	if s.interactions.meta.LastUpdate.After(last) {
		last = s.interactions.meta.LastUpdate
	}
	return statsFrom(cs, len(s.interactions.data), meta, last), nil
}

// Close is a no-op; every mutation is already on disk
func (s *JSONStore) Close() error {
	return nil
}

var _ Store = (*JSONStore)(nil)
