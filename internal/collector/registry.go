package collector

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docuflow/internal/docindex"
)

// registryQuery reads entities with their members, one row per member (or
// one row with NULL member columns for an entity without members).
//
// Expected schema:
//
//	CREATE TABLE doc_entities (
//	    id          TEXT PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    namespace   TEXT NOT NULL DEFAULT '',
//	    description TEXT NOT NULL DEFAULT '',
//	    position    INT  NOT NULL DEFAULT 0
//	);
//	CREATE TABLE doc_members (
//	    entity_id   TEXT NOT NULL REFERENCES doc_entities(id) ON DELETE CASCADE,
//	    kind        TEXT NOT NULL CHECK (kind IN ('method', 'property')),
//	    name        TEXT NOT NULL,
//	    description TEXT NOT NULL DEFAULT '',
//	    position    INT  NOT NULL DEFAULT 0
//	);
const registryQuery = `
SELECT e.id, e.name, e.namespace, e.description, m.kind, m.name, m.description
FROM doc_entities e
LEFT JOIN doc_members m ON m.entity_id = e.id
ORDER BY e.position, e.id, m.position, m.name`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RegistrySource reads documented entities from the Postgres registry.
type RegistrySource struct {
	DB querier
}

func NewRegistrySource(db *sql.DB) *RegistrySource {
	return &RegistrySource{DB: db}
}

func (s *RegistrySource) Name() string {
	return "registry"
}

func (s *RegistrySource) Collect(ctx context.Context) ([]docindex.Entity, error) {
	rows, err := s.DB.QueryContext(ctx, registryQuery)
	if err != nil {
		return nil, fmt.Errorf("querying doc registry: %w", err)
	}
	defer rows.Close()

	var scanned []registryRow
	for rows.Next() {
		var r registryRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Namespace, &r.Description, &r.MemberKind, &r.MemberName, &r.MemberDesc); err != nil {
			return nil, fmt.Errorf("scanning doc registry row: %w", err)
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading doc registry: %w", err)
	}
	return assembleRows(scanned)
}

type registryRow struct {
	ID          string
	Name        string
	Namespace   string
	Description string
	MemberKind  sql.NullString
	MemberName  sql.NullString
	MemberDesc  sql.NullString
}

// assembleRows groups consecutive rows of the same entity. Rows must be
// ordered by entity.
func assembleRows(rows []registryRow) ([]docindex.Entity, error) {
	var out []docindex.Entity
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].ID != r.ID {
			out = append(out, docindex.Entity{
				ID:          r.ID,
				Name:        r.Name,
				Namespace:   r.Namespace,
				Description: r.Description,
				Source:      "registry",
			})
		}
		if !r.MemberName.Valid {
			continue
		}
		kind, err := docindex.ParseMemberKind(r.MemberKind.String)
		if err != nil {
			return nil, fmt.Errorf("entity %q member %q: %w", r.ID, r.MemberName.String, err)
		}
		last := &out[len(out)-1]
		last.Members = append(last.Members, docindex.Member{
			Kind:        kind,
			Name:        r.MemberName.String,
			Description: r.MemberDesc.String,
		})
	}
	return out, nil
}
