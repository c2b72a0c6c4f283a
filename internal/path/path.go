package path

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Separator    = ':'
	SeparatorStr = ":"
)

var (
	ErrTrailingSeparator = errors.New("path: trailing separator is ambiguous")
	ErrNoKey             = errors.New("path: no key component")
)

// Path is a parsed address. A nil Basis means the default basis; a nil
// Dict means the path names a basis (or the root) only.
type Path struct {
	Basis *string
	Dict  *string
}

// Parser splits paths, substituting DefaultBasis for an explicit empty basis ("::").
type Parser struct {
	DefaultBasis func() (string, bool)
}

// Parse splits s without a configured default basis.
func Parse(s string) (Path, error) {
	return Parser{}.Parse(s)
}

func (p Parser) Parse(s string) (Path, error) {
	basis, dict, err := p.Split(s)
	if err != nil {
		return Path{}, err
	}
	return Path{Basis: basis, Dict: dict}, nil
}

// Split separates s into its basis and dictionary/key remainder.
func (p Parser) Split(s string) (basis, dict *string, err error) {
	if rest, ok := strings.CutPrefix(s, SeparatorStr); ok {
		if b, d, found := strings.Cut(rest, SeparatorStr); found {
			if b != "" {
				basis = &b
			} else {
				basis = p.defaultBasis()
			}
			if d != "" {
				dict = &d
			}
		} else if rest != "" {
			basis = &rest
		}
	} else {
		if s == "" {
			empty := ""
			return nil, &empty, nil
		}
		dict = &s
	}

	if basis != nil && strings.HasSuffix(*basis, SeparatorStr) {
		return nil, nil, fmt.Errorf("%w: basis %q", ErrTrailingSeparator, *basis)
	}
	if dict != nil && strings.HasSuffix(*dict, SeparatorStr) {
		return nil, nil, fmt.Errorf("%w: %q", ErrTrailingSeparator, s)
	}
	return basis, dict, nil
}

func (p Parser) defaultBasis() *string {
	if p.DefaultBasis == nil {
		return nil
	}
	name, ok := p.DefaultBasis()
	if !ok {
		return nil
	}
	return &name
}

// IsRoot reports whether the path is ":" (the listing of every basis).
func (p Path) IsRoot() bool {
	return p.Basis == nil && p.Dict == nil
}

// IsUnionRoot reports whether the path is "" (dictionaries of the union basis).
func (p Path) IsUnionRoot() bool {
	return p.Basis == nil && p.Dict != nil && *p.Dict == ""
}

// DictKey treats the remainder as a file: the key is everything after the
// last separator and the dictionary everything before it.
func (p Path) DictKey() (dict, key string, err error) {
	if p.Dict == nil || *p.Dict == "" {
		return "", "", ErrNoKey
	}
	i := strings.LastIndexByte(*p.Dict, Separator)
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q", ErrNoKey, *p.Dict)
	}
	return (*p.Dict)[:i], (*p.Dict)[i+1:], nil
}

// String renders the canonical form.
func (p Path) String() string {
	var b strings.Builder
	if p.Basis != nil || p.Dict == nil {
		b.WriteByte(Separator)
		if p.Basis != nil {
			b.WriteString(*p.Basis)
		}
		if p.Dict != nil {
			b.WriteByte(Separator)
		}
	}
	if p.Dict != nil {
		b.WriteString(*p.Dict)
	}
	return b.String()
}

// Child returns the immediate child segment of name below prefix, if name
// is exactly one level beneath it. An empty prefix denotes the top level.
func Child(name, prefix string) (string, bool) {
	if name == "" {
		return "", false
	}
	if prefix == "" {
		if strings.ContainsRune(name, Separator) {
			return "", false
		}
		return name, true
	}
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutPrefix(rest, SeparatorStr)
	if !ok || strings.ContainsRune(rest, Separator) {
		return "", false
	}
	return rest, true
}
