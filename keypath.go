package ludus

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// KeyPath locates a nested configuration entry, outermost segment first.
type KeyPath []string

// Key builds a KeyPath from its segments.
func Key(segments ...string) KeyPath {
	return KeyPath(segments)
}

// ParseKeyPath splits s on whitespace. "config key" yields [config key].
func ParseKeyPath(s string) KeyPath {
	return KeyPath(strings.Fields(s))
}

// String joins the segments with a single space, the form config-get expects.
func (k KeyPath) String() string {
	return strings.Join(k, " ")
}

// dotted is the alternate spelling some tool diagnostics use.
func (k KeyPath) dotted() string {
	return strings.Join(k, ".")
}

// Validate reports ErrInvalidArgument if the path is empty or any segment
// is empty, contains whitespace or would be read as a flag.
func (k KeyPath) Validate() error {
	if len(k) == 0 {
		return invalidArg("key path is empty")
	}
	for i, seg := range k {
		if seg == "" {
			return invalidArg("key path segment %d is empty", i)
		}
		if strings.IndexFunc(seg, unicode.IsSpace) >= 0 {
			return invalidArg("key path segment %q contains whitespace", seg)
		}
		if looksLikeFlag(seg) {
			return invalidArg("key path segment %q starts with '-'", seg)
		}
	}
	return nil
}

// keyPathStrings renders each key path in its space-joined form.
func keyPathStrings(keys []KeyPath) []string {
	return lo.Map(keys, func(k KeyPath, _ int) string {
		return k.String()
	})
}
