package docsearch

import "strings"

// Hit is the renderer-facing form of a Result.
type Hit struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Score     int    `json:"score"`
}

// Page is a query answer ready to serialise: the hits after the limit plus
// the total number of matching entities before it.
type Page struct {
	Query     string `json:"query"`
	Version   uint64 `json:"version"`
	TotalHits int    `json:"total_hits"`
	Hits      []Hit  `json:"results"`
}

// Search runs the query like Query and packages the outcome as a Page.
func (e *Engine) Search(src SnapshotSource, text string, opts Options) Page {
	resolved := e.resolve(opts)
	limit := resolved.Limit
	resolved.Limit = 0
	all, snap := e.run(src, text, resolved)
	kept := truncate(all, limit)

	page := Page{
		Query:     strings.TrimSpace(text),
		TotalHits: len(all),
		Hits:      make([]Hit, 0, len(kept)),
	}
	if snap != nil {
		page.Version = snap.Version()
	}
	for _, r := range kept {
		page.Hits = append(page.Hits, Hit{
			ID:        r.Entity.ID,
			Name:      r.Entity.Name,
			Namespace: r.Entity.Namespace,
			Score:     r.Score,
		})
	}
	return page
}
