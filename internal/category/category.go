// Package category holds the fixed set of storage partitions and the MIME class each accepts.
package category

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

// ErrUnknownCategory is returned when a tag does not name one of the fixed categories.
var ErrUnknownCategory = errors.New("unknown category")

// Category is one of the fixed storage partitions. The zero value is invalid.
type Category int

const (
	Article Category = iota + 1
	Book
	Video
	Audio
)

type props struct {
	tag      string
	dir      string
	expected string
	accepts  func(mediaType string) bool
}

func prefix(p string) func(string) bool {
	return func(mt string) bool { return strings.HasPrefix(mt, p) }
}

func exactly(want string) func(string) bool {
	return func(mt string) bool { return mt == want }
}

// table is the only place categories are defined. The dir doubles as the plural tag
// used by the list and delete URLs.
var table = map[Category]props{
	Article: {tag: "article", dir: "articles", expected: "image/*", accepts: prefix("image/")},
	Book:    {tag: "book", dir: "books", expected: "application/pdf", accepts: exactly("application/pdf")},
	Video:   {tag: "video", dir: "videos", expected: "video/*", accepts: prefix("video/")},
	Audio:   {tag: "audio", dir: "audios", expected: "audio/*", accepts: prefix("audio/")},
}

var byTag = func() map[string]Category {
	m := make(map[string]Category, len(table)*2)
	for c, s := range table {
		m[s.tag] = c
		m[s.dir] = c
	}
	return m
}()

// All returns every category in declaration order.
func All() []Category {
	return []Category{Article, Book, Video, Audio}
}

// Resolve maps a singular ("book") or plural ("books") tag to its Category.
func Resolve(tag string) (Category, error) {
	c, ok := byTag[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return 0, fmt.Errorf("%w %q: expected one of article, book, video, audio", ErrUnknownCategory, tag)
	}
	return c, nil
}

// String returns the singular tag.
func (c Category) String() string {
	if s, ok := table[c]; ok {
		return s.tag
	}
	return "unknown"
}

// Dir is the directory (and key prefix) holding the category's payloads.
func (c Category) Dir() string {
	return table[c].dir
}

// Expected describes the accepted MIME class, e.g. "image/*".
func (c Category) Expected() string {
	return table[c].expected
}

// Accepts reports whether a declared MIME type belongs to the category's class.
// Parameters are ignored and matching is case-insensitive.
func (c Category) Accepts(contentType string) bool {
	s, ok := table[c]
	if !ok {
		return false
	}
	return s.accepts(MediaType(contentType))
}

// MediaType lower-cases a content type and strips its parameters.
func MediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
