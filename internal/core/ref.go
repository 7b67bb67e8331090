package core

import "strings"

// RefKind distinguishes persistent ids from the reserved ephemeral prefixes.
type RefKind int

const (
	RefPersistent RefKind = iota
	RefTemp
	RefError
	RefDemo
)

// Ref is a classified resource identifier. Classification happens once at
// the request boundary; handlers branch on Kind instead of re-parsing the id.
type Ref struct {
	ID   string
	Kind RefKind
}

// ParseRef classifies a ticket or message identifier.
func ParseRef(id string) Ref {
	switch {
	case strings.HasPrefix(id, "temp-"):
		return Ref{ID: id, Kind: RefTemp}
	case strings.HasPrefix(id, "error-"):
		return Ref{ID: id, Kind: RefError}
	case strings.HasPrefix(id, "demo-"):
		return Ref{ID: id, Kind: RefDemo}
	default:
		return Ref{ID: id, Kind: RefPersistent}
	}
}

// Ephemeral reports whether the id belongs to the fallback store.
func (r Ref) Ephemeral() bool {
	return r.Kind != RefPersistent
}
