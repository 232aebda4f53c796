// Package docsearch ranks documented entities against a free-text query.
//
// Every field of an entity (its name, its description, and the names and
// descriptions of its members) is case-folded and compared to the folded
// query by substring containment and by whole-field Levenshtein distance.
// The distance pass runs only when the snapshot's prefix trie confirms that
// some indexed key is within the fuzzy threshold of the query. Matches are
// scored additively by field tier and sorted by descending score, ties
// keeping index order.
package docsearch

import (
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/tokenizer"
)

const (
	DefaultFuzzyThreshold = 2

	ScoreName        = 1000
	ScoreMethod      = 500
	ScoreProperty    = 500
	ScoreDescription = 1
)

// SnapshotSource is anything that can hand out a consistent snapshot. Both
// *docindex.Index and *docindex.Snapshot satisfy it.
type SnapshotSource interface {
	Snapshot() *docindex.Snapshot
}

// Options tunes a single query. Zero values fall back to the engine
// defaults.
type Options struct {
	// FuzzyThreshold is the maximum edit distance for a fuzzy field match.
	FuzzyThreshold int
	DisableFuzzy   bool
	// Limit caps the number of results; 0 means no cap.
	Limit int
	// Kinds restricts which member kinds take part in matching.
	Kinds []docindex.MemberKind
}

// Result is one ranked entity. Position is its index in the snapshot.
type Result struct {
	Entity   docindex.Entity `json:"entity"`
	Score    int             `json:"score"`
	Position int             `json:"position"`
}

type Engine struct {
	defaults Options
	logger   *slog.Logger
}

func NewEngine(defaults Options) *Engine {
	if defaults.FuzzyThreshold <= 0 {
		defaults.FuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Engine{
		defaults: defaults,
		logger:   slog.Default().With("component", "doc-search"),
	}
}

func (e *Engine) resolve(opts Options) Options {
	out := opts
	if out.FuzzyThreshold <= 0 {
		out.FuzzyThreshold = e.defaults.FuzzyThreshold
	}
	out.DisableFuzzy = opts.DisableFuzzy || e.defaults.DisableFuzzy
	if out.Limit <= 0 {
		out.Limit = e.defaults.Limit
	}
	if len(out.Kinds) == 0 {
		out.Kinds = e.defaults.Kinds
	}
	return out
}

// Query ranks the entities of src's current snapshot against text. A blank
// query returns every entity in index order with score 0. A nil source, an
// empty snapshot or an unmatched query yields an empty slice.
func (e *Engine) Query(src SnapshotSource, text string, opts Options) []Result {
	results, _ := e.run(src, text, e.resolve(opts))
	return results
}

func (e *Engine) run(src SnapshotSource, text string, opts Options) ([]Result, *docindex.Snapshot) {
	if src == nil {
		return []Result{}, nil
	}
	snap := src.Snapshot()
	if snap == nil {
		return []Result{}, nil
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		results := make([]Result, snap.Len())
		for i := range results {
			results[i] = Result{Entity: snap.Entity(i), Position: i}
		}
		return truncate(results, opts.Limit), snap
	}

	m := matcher{
		query:     tokenizer.Fold(trimmed),
		threshold: opts.FuzzyThreshold,
		methods:   includesKind(opts.Kinds, docindex.KindMethod),
		props:     includesKind(opts.Kinds, docindex.KindProperty),
	}
	// The trie holds every searchable field verbatim, so if no key is within
	// the threshold no field can be either.
	m.fuzzy = !opts.DisableFuzzy && snap.Trie().AnyWithin(m.query, m.threshold)

	results := make([]Result, 0)
	for i := 0; i < snap.Len(); i++ {
		if s := m.score(snap.Folded(i)); s > 0 {
			results = append(results, Result{Entity: snap.Entity(i), Score: s, Position: i})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	e.logger.Debug("query ranked",
		"query", trimmed,
		"fuzzy", m.fuzzy,
		"candidates", snap.Len(),
		"matches", len(results),
		"version", snap.Version(),
	)
	return truncate(results, opts.Limit), snap
}

func truncate(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func includesKind(kinds []docindex.MemberKind, k docindex.MemberKind) bool {
	return len(kinds) == 0 || slices.Contains(kinds, k)
}

type matcher struct {
	query     string
	fuzzy     bool
	threshold int
	methods   bool
	props     bool
}

// matches applies containment and, when the trie gate allowed it, the
// bounded whole-field distance. Empty fields never match.
func (m matcher) matches(field string) bool {
	if field == "" {
		return false
	}
	if strings.Contains(field, m.query) {
		return true
	}
	return m.fuzzy && within(field, m.query, m.threshold)
}

func (m matcher) score(f docindex.FoldedEntity) int {
	score := 0
	if m.matches(f.Name) || strings.Contains(f.ID, m.query) {
		score += ScoreName
	}
	if m.matches(f.Description) {
		score += ScoreDescription
	}

	var methodHit, propHit, memberDescHit bool
	for _, mem := range f.Members {
		switch {
		case mem.Kind == docindex.KindMethod && !m.methods:
			continue
		case mem.Kind == docindex.KindProperty && !m.props:
			continue
		}
		if mem.Kind == docindex.KindMethod && !methodHit && m.matches(mem.Name) {
			methodHit = true
		}
		if mem.Kind == docindex.KindProperty && !propHit && m.matches(mem.Name) {
			propHit = true
		}
		if !memberDescHit && m.matches(mem.Description) {
			memberDescHit = true
		}
	}
	if methodHit {
		score += ScoreMethod
	}
	if propHit {
		score += ScoreProperty
	}
	if memberDescHit {
		score += ScoreDescription
	}
	return score
}
