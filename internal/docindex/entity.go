package docindex

import (
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/docuflow/pkg/errors"
)

// MemberKind distinguishes documented methods from documented properties.
type MemberKind int

const (
	KindMethod MemberKind = iota + 1
	KindProperty
)

func (k MemberKind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindProperty:
		return "property"
	default:
		return fmt.Sprintf("MemberKind(%d)", int(k))
	}
}

// ParseMemberKind accepts "method" or "property" in any case.
func ParseMemberKind(s string) (MemberKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "method":
		return KindMethod, nil
	case "property":
		return KindProperty, nil
	default:
		return 0, fmt.Errorf("%w: unknown member kind %q", apperrors.ErrInvalidInput, s)
	}
}

func (k MemberKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MemberKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMemberKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Member is a documented method or property. Owner is the identity of the
// entity that declares it and is only used for lookups.
type Member struct {
	Kind        MemberKind `json:"kind"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Owner       string     `json:"owner"`
}

// Entity is a documented type. ID is the fully-qualified name and the unique
// key within a snapshot.
type Entity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Namespace   string   `json:"namespace"`
	Description string   `json:"description"`
	Source      string   `json:"source,omitempty"`
	Members     []Member `json:"members"`
}

// Methods returns the entity's documented methods in declaration order.
func (e Entity) Methods() []Member {
	return e.membersOf(KindMethod)
}

// Properties returns the entity's documented properties in declaration order.
func (e Entity) Properties() []Member {
	return e.membersOf(KindProperty)
}

func (e Entity) membersOf(kind MemberKind) []Member {
	out := make([]Member, 0, len(e.Members))
	for _, m := range e.Members {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// NamespaceOf returns the qualifier part of a fully-qualified identity, or ""
// for an unqualified one.
func NamespaceOf(id string) string {
	if i := strings.LastIndex(id, "."); i > 0 {
		return id[:i]
	}
	return ""
}

// normalize validates e and returns a deep copy with defaults filled in, so
// later changes to the caller's slices cannot reach a snapshot.
func (e Entity) normalize(pos int) (Entity, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return Entity{}, fmt.Errorf("%w: entity at position %d has no identity", apperrors.ErrInvalidEntity, pos)
	}
	if strings.TrimSpace(e.Name) == "" {
		return Entity{}, fmt.Errorf("%w: entity %q has no name", apperrors.ErrInvalidEntity, id)
	}
	out := e
	out.ID = id
	if out.Namespace == "" {
		out.Namespace = NamespaceOf(id)
	}
	out.Members = make([]Member, len(e.Members))
	for i, m := range e.Members {
		if strings.TrimSpace(m.Name) == "" {
			return Entity{}, fmt.Errorf("%w: entity %q member %d has no name", apperrors.ErrInvalidEntity, id, i)
		}
		if m.Kind != KindMethod && m.Kind != KindProperty {
			return Entity{}, fmt.Errorf("%w: entity %q member %q has kind %s", apperrors.ErrInvalidEntity, id, m.Name, m.Kind)
		}
		m.Owner = id
		out.Members[i] = m
	}
	return out, nil
}
