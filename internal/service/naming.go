package service

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultField = "file"
	sidecarExt   = ".json"
)

var (
	safeExt   = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
	safeField = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// namer generates payload names of the form {field}-{millis}-{random}{ext}.
// The millisecond component is strictly increasing within the process, and the random
// part separates processes sharing a directory.
type namer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
	rand func() string
}

func newNamer(now func() time.Time) *namer {
	return &namer{now: now, rand: randomToken}
}

func (n *namer) next(field, originalName string) string {
	n.mu.Lock()
	ms := n.now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	n.mu.Unlock()

	if !safeField.MatchString(field) {
		field = defaultField
	}
	return fmt.Sprintf("%s-%d-%s%s", field, ms, n.rand(), extension(originalName))
}

// randomToken returns 12 hex characters (48 random bits) of a v4 UUID.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// extension keeps the original extension only when it is short and alphanumeric.
// ".json" is dropped so a payload can never be mistaken for a sidecar.
func extension(originalName string) string {
	base := originalName
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	ext := strings.ToLower(path.Ext(base))
	if !safeExt.MatchString(ext) || ext == sidecarExt {
		return ""
	}
	return ext
}

func isSidecar(name string) bool {
	return strings.HasSuffix(name, sidecarExt)
}

// validPayloadName reports whether name can address a payload: a single, visible path
// element that is not a sidecar.
func validPayloadName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return !isSidecar(name)
}
