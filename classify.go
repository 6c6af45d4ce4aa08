package ludus

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultPatterns returns the stderr patterns the classifier starts from.
func DefaultPatterns() Patterns {
	return Patterns{
		Exists:    `(?i)already exists`,
		NotFound:  `(?i)(not found|does not exist|no such instance)`,
		ConfigKey: `(?i)((invalid|unknown|no such|missing) (config(uration)? )?key|\bkey\b.*\b(not found|does not exist))`,
	}
}

// Classifier turns a failed invocation into a typed error. It is the only
// place that reads the tool's stderr text.
type Classifier struct {
	exists    *regexp.Regexp
	notFound  *regexp.Regexp
	configKey *regexp.Regexp
}

// NewClassifier compiles p over DefaultPatterns. Empty fields keep the default.
func NewClassifier(p Patterns) (*Classifier, error) {
	def := DefaultPatterns()
	pick := func(override, fallback string) string {
		if strings.TrimSpace(override) != "" {
			return override
		}
		return fallback
	}

	exists, err := regexp.Compile(pick(p.Exists, def.Exists))
	if err != nil {
		return nil, fmt.Errorf("compile exists pattern: %w", err)
	}
	notFound, err := regexp.Compile(pick(p.NotFound, def.NotFound))
	if err != nil {
		return nil, fmt.Errorf("compile not-found pattern: %w", err)
	}
	configKey, err := regexp.Compile(pick(p.ConfigKey, def.ConfigKey))
	if err != nil {
		return nil, fmt.Errorf("compile config-key pattern: %w", err)
	}
	return &Classifier{exists: exists, notFound: notFound, configKey: configKey}, nil
}

// Classify returns the error for a non-zero exit of verb against instance.
// keys are the key paths the call carried, used to name the offending one.
func (c *Classifier) Classify(verb, instance string, res Result, keys []KeyPath) *CommandError {
	e := &CommandError{
		kind:     ErrInstanceExecution,
		Verb:     verb,
		Instance: instance,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
	}

	switch verb {
	case VerbInstanceCreate:
		// A missing archetype also reads "not found"; only "exists" is typed here.
		if c.exists.MatchString(res.Stderr) {
			e.kind = ErrInstanceExists
		}
	case VerbInstanceRun, VerbInstanceClear:
		if c.notFound.MatchString(res.Stderr) {
			e.kind = ErrInstanceNotFound
		}
	case VerbConfigSet, VerbConfigGet:
		// Key errors are checked first: "key ... not found" names a key, not the instance.
		switch {
		case c.configKey.MatchString(res.Stderr):
			e.kind = ErrConfigKey
			e.KeyPath = offendingKey(res.Stderr, keys)
		case c.notFound.MatchString(res.Stderr):
			e.kind = ErrInstanceNotFound
		}
	}
	return e
}

// offendingKey picks the first requested key path mentioned in stderr, in
// either space-joined or dotted form. With a single key path and no
// mention, that path is returned. Otherwise nil.
func offendingKey(stderr string, keys []KeyPath) KeyPath {
	for _, k := range keys {
		if mentions(stderr, k.String()) || mentions(stderr, k.dotted()) {
			return k
		}
	}
	if len(keys) == 1 {
		return keys[0]
	}
	return nil
}

// mentions reports whether token appears in s not adjacent to other key characters.
func mentions(s, token string) bool {
	re := regexp.MustCompile(`(^|[^\w.\-])` + regexp.QuoteMeta(token) + `($|[^\w.\-]|\.($|\s))`)
	return re.MatchString(s)
}
