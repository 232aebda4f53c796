package docindex

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
)

// FoldedMember holds the case-folded searchable fields of a member.
type FoldedMember struct {
	Kind        MemberKind
	Name        string
	Description string
}

// FoldedEntity holds the case-folded searchable fields of an entity, computed
// once per snapshot so queries never fold corpus text.
type FoldedEntity struct {
	ID          string
	Name        string
	Description string
	Members     []FoldedMember
}

// Snapshot is an immutable view of the documentation corpus: the entities in
// load order, an identity map and a prefix trie over every searchable field
// and its word tokens. All three are built together by BuildSnapshot and
// never change afterwards.
type Snapshot struct {
	version  uint64
	loadedAt time.Time
	entities []Entity
	folded   []FoldedEntity
	byID     map[string]int
	trie     *Trie
	members  int
}

var emptySnapshot = &Snapshot{
	byID: map[string]int{},
	trie: NewTrie(),
}

// BuildSnapshot validates entities and builds a complete snapshot from them.
// Any malformed or duplicate entity fails the whole build. A nil or empty
// slice yields an empty, queryable snapshot.
func BuildSnapshot(entities []Entity, version uint64) (*Snapshot, error) {
	s := &Snapshot{
		version:  version,
		loadedAt: time.Now().UTC(),
		entities: make([]Entity, 0, len(entities)),
		folded:   make([]FoldedEntity, 0, len(entities)),
		byID:     make(map[string]int, len(entities)),
		trie:     NewTrie(),
	}
	for i, raw := range entities {
		e, err := raw.normalize(i)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byID[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate identity %q", apperrors.ErrInvalidEntity, e.ID)
		}
		s.byID[e.ID] = len(s.entities)
		s.entities = append(s.entities, e)
		s.folded = append(s.folded, s.foldAndIndex(e))
		s.members += len(e.Members)
	}
	return s, nil
}

func (s *Snapshot) foldAndIndex(e Entity) FoldedEntity {
	f := FoldedEntity{
		ID:          tokenizer.Fold(e.ID),
		Name:        tokenizer.Fold(e.Name),
		Description: tokenizer.Fold(e.Description),
		Members:     make([]FoldedMember, len(e.Members)),
	}
	s.insertField(f.Name, e.Name)
	s.insertField(f.Description, e.Description)
	for i, m := range e.Members {
		fm := FoldedMember{
			Kind:        m.Kind,
			Name:        tokenizer.Fold(m.Name),
			Description: tokenizer.Fold(m.Description),
		}
		s.insertField(fm.Name, m.Name)
		s.insertField(fm.Description, m.Description)
		f.Members[i] = fm
	}
	return f
}

// insertField adds the whole folded field as a key, then each of its tokens.
func (s *Snapshot) insertField(folded, raw string) {
	s.trie.Insert(folded)
	for _, tok := range tokenizer.Tokenize(raw) {
		s.trie.Insert(tok)
	}
}

// Snapshot returns s itself, letting a fixed snapshot stand in wherever a
// live Index is accepted.
func (s *Snapshot) Snapshot() *Snapshot {
	return s
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

func (s *Snapshot) Len() int {
	return len(s.entities)
}

// Entity returns the entity at load position i.
func (s *Snapshot) Entity(i int) Entity {
	return s.entities[i]
}

// Folded returns the folded fields of the entity at load position i.
func (s *Snapshot) Folded(i int) FoldedEntity {
	return s.folded[i]
}

// Entities returns a copy of the entity list in load order.
func (s *Snapshot) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

// Lookup returns the entity with the given identity.
func (s *Snapshot) Lookup(id string) (Entity, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Entity{}, false
	}
	return s.entities[i], true
}

// Position returns the load position of id, or -1.
func (s *Snapshot) Position(id string) int {
	if i, ok := s.byID[id]; ok {
		return i
	}
	return -1
}

// Trie exposes the snapshot's prefix trie for read-only use.
func (s *Snapshot) Trie() *Trie {
	return s.trie
}

// Suggest returns up to limit trie keys that start with the folded prefix.
func (s *Snapshot) Suggest(prefix string, limit int) []string {
	p := tokenizer.Fold(prefix)
	if p == "" {
		return []string{}
	}
	return s.trie.KeysWithPrefix(p, limit)
}

// Stats summarises a snapshot.
type Stats struct {
	Version  uint64    `json:"version"`
	Entities int       `json:"entities"`
	Members  int       `json:"members"`
	TrieKeys int       `json:"trie_keys"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Snapshot) Stats() Stats {
	return Stats{
		Version:  s.version,
		Entities: len(s.entities),
		Members:  s.members,
		TrieKeys: s.trie.Len(),
		LoadedAt: s.loadedAt,
	}
}
