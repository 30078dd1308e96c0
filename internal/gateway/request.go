package gateway

import (
	"fmt"
	"strings"

	"github.com/atinyakov/passe/internal/models"
)

// Template selects the output character class and length policy.
type Template string

const (
	Maximum Template = "maximum"
	Long    Template = "long"
	Medium  Template = "medium"
	Short   Template = "short"
	Basic   Template = "basic"
	PIN     Template = "pin"
	Name    Template = "name"
	Phrase  Template = "phrase"
)

// Templates lists every supported template.
var Templates = []Template{Maximum, Long, Medium, Short, Basic, PIN, Name, Phrase}

// Valid reports whether t is a supported template.
func (t Template) Valid() bool {
	for _, known := range Templates {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTemplate maps a case-insensitive name to a Template.
func ParseTemplate(s string) (Template, error) {
	t := Template(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown template %q", models.ErrDerivationRejected, s)
	}
	return t, nil
}

// Defaults applied by NewRequest.
const (
	DefaultCounter  = 1
	DefaultScope    = "default"
	DefaultTemplate = Long
)

// Request carries one derivation's inputs. Secret aliases caller memory;
// the gateway never keeps it past the call.
type Request struct {
	Identity string
	Secret   []byte
	Site     string
	Counter  int
	Scope    string
	Template Template
}

// Option adjusts a Request built by NewRequest.
type Option func(*Request)

// WithCounter sets the site counter ("password version").
func WithCounter(n int) Option {
	return func(r *Request) { r.Counter = n }
}

// WithScope sets the derivation scope. An empty scope keeps the default.
func WithScope(scope string) Option {
	return func(r *Request) {
		if scope != "" {
			r.Scope = scope
		}
	}
}

// WithTemplate sets the output template. An empty template keeps the default.
func WithTemplate(t Template) Option {
	return func(r *Request) {
		if t != "" {
			r.Template = t
		}
	}
}

// NewRequest builds a Request with the default counter, scope and template.
func NewRequest(identity string, secret []byte, site string, opts ...Option) Request {
	r := Request{
		Identity: identity,
		Secret:   secret,
		Site:     site,
		Counter:  DefaultCounter,
		Scope:    DefaultScope,
		Template: DefaultTemplate,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
