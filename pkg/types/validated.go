// Package types holds the validated value types and core entities shared
// across every KotaDB component: ids, paths, titles, tags, limits,
// documents, symbols and relationship edges. Constructors are the only way
// to obtain a value of these types, so illegal states cannot reach a
// component's public API.
package types

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kotadb/kotadb/pkg/kerrors"
)

// ID is a validated 128-bit opaque identifier. The zero value is invalid;
// use NewID or ParseID.
type ID struct {
	u uuid.UUID
}

// NewID generates a fresh, valid ID.
func NewID() ID {
	return ID{u: uuid.New()}
}

// ParseID validates and wraps an existing UUID string.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, kerrors.Wrap(kerrors.Validation, "invalid id", err).WithField("id")
	}
	if u == uuid.Nil {
		return ID{}, kerrors.New(kerrors.Validation, "id must not be nil").WithField("id")
	}
	return ID{u: u}, nil
}

// IDFromBytes wraps a 16-byte representation as an ID.
func IDFromBytes(b [16]byte) (ID, error) {
	u := uuid.UUID(b)
	if u == uuid.Nil {
		return ID{}, kerrors.New(kerrors.Validation, "id must not be nil").WithField("id")
	}
	return ID{u: u}, nil
}

func (id ID) String() string   { return id.u.String() }
func (id ID) Bytes() [16]byte  { return id.u }
func (id ID) IsZero() bool     { return id.u == uuid.Nil }
func (id ID) Equal(o ID) bool  { return id.u == o.u }
func (id ID) Compare(o ID) int {
	for i := range id.u {
		if id.u[i] != o.u[i] {
			if id.u[i] < o.u[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler so ID round-trips through
// JSON the same way it round-trips through the primary index's data file.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.u.String()), nil }

func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

const maxPathComponentLen = 255

// Path is a validated UTF-8 filesystem-style path, always forward-slash
// separated regardless of host OS.
type Path struct {
	s string
}

// NewPath validates and constructs a Path. It rejects empty paths, ".."
// segments, absolute paths into reserved OS roots, and components longer
// than the platform maximum.
func NewPath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, kerrors.New(kerrors.Validation, "path must not be empty").WithField("path")
	}
	if !utf8.ValidString(raw) {
		return Path{}, kerrors.New(kerrors.Validation, "path must be valid UTF-8").WithField("path")
	}
	normalized := strings.ReplaceAll(raw, `\`, "/")
	for _, reserved := range []string{"/etc/", "/proc/", "/sys/", "/dev/"} {
		if strings.HasPrefix(normalized, reserved) {
			return Path{}, kerrors.Newf(kerrors.Validation, "path %q targets a reserved root", raw).WithField("path")
		}
	}
	segments := strings.Split(strings.Trim(normalized, "/"), "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return Path{}, kerrors.New(kerrors.Validation, "path must not contain empty segments").WithField("path")
		case "..":
			return Path{}, kerrors.New(kerrors.Validation, "path must not contain .. segments").WithField("path")
		}
		if len(seg) > maxPathComponentLen {
			return Path{}, kerrors.Newf(kerrors.Validation, "path component %q exceeds %d bytes", seg, maxPathComponentLen).WithField("path")
		}
	}
	return Path{s: normalized}, nil
}

func (p Path) String() string { return p.s }
func (p Path) IsZero() bool   { return p.s == "" }

// Segments returns the path split on "/".
func (p Path) Segments() []string {
	return strings.Split(strings.Trim(p.s, "/"), "/")
}

func (p Path) MarshalText() ([]byte, error) { return []byte(p.s), nil }

func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := NewPath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Title is a validated document title, 1..=1024 bytes.
type Title struct{ s string }

func NewTitle(raw string) (Title, error) {
	if len(raw) == 0 {
		return Title{}, kerrors.New(kerrors.Validation, "title must not be empty").WithField("title")
	}
	if len(raw) > 1024 {
		return Title{}, kerrors.New(kerrors.Validation, "title must be at most 1024 bytes").WithField("title")
	}
	if !utf8.ValidString(raw) {
		return Title{}, kerrors.New(kerrors.Validation, "title must be valid UTF-8").WithField("title")
	}
	return Title{s: raw}, nil
}

func (t Title) String() string              { return t.s }
func (t Title) MarshalText() ([]byte, error) { return []byte(t.s), nil }
func (t *Title) UnmarshalText(b []byte) error {
	parsed, err := NewTitle(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Tag is a validated document tag: non-empty, at most 64 bytes, no
// whitespace. Promoted from the distilled spec's prose (SearchOptions.tags)
// into a first-class value type.
type Tag struct{ s string }

func NewTag(raw string) (Tag, error) {
	if raw == "" {
		return Tag{}, kerrors.New(kerrors.Validation, "tag must not be empty").WithField("tag")
	}
	if len(raw) > 64 {
		return Tag{}, kerrors.New(kerrors.Validation, "tag must be at most 64 bytes").WithField("tag")
	}
	if strings.ContainsAny(raw, " \t\n\r") {
		return Tag{}, kerrors.New(kerrors.Validation, "tag must not contain whitespace").WithField("tag")
	}
	return Tag{s: raw}, nil
}

func (t Tag) String() string { return t.s }

// Limit is a validated result-size limit, 1..=1000.
type Limit struct{ n uint32 }

func NewLimit(n uint32) (Limit, error) {
	if n < 1 || n > 1000 {
		return Limit{}, kerrors.Newf(kerrors.Validation, "limit must be between 1 and 1000, got %d", n).WithField("limit")
	}
	return Limit{n: n}, nil
}

func (l Limit) Value() uint32 { return l.n }
