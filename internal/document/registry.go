package document

import (
	"fmt"
	"sort"
	"strings"

	"CCNLMonitor/internal/ports"
)

// Registry maps content types to parser implementations.
type Registry struct {
	parsers map[string]ports.DocumentParser
}

// NewRegistry builds a registry holding the given parsers.
func NewRegistry(parsers ...ports.DocumentParser) *Registry {
	r := &Registry{parsers: map[string]ports.DocumentParser{}}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a parser for every content type it declares.
func (r *Registry) Register(parser ports.DocumentParser) {
	if r.parsers == nil {
		r.parsers = map[string]ports.DocumentParser{}
	}
	for _, ct := range parser.ContentTypes() {
		r.parsers[normalizeContentType(ct)] = parser
	}
}

// Resolve returns the parser for a content type. Parameters such as charset are ignored.
func (r *Registry) Resolve(contentType string) (ports.DocumentParser, error) {
	if parser, ok := r.parsers[normalizeContentType(contentType)]; ok {
		return parser, nil
	}
	return nil, fmt.Errorf("no parser registered for %q", contentType)
}

// ContentTypes lists every registered content type.
func (r *Registry) ContentTypes() []string {
	types := make([]string, 0, len(r.parsers))
	for ct := range r.parsers {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}

// Len returns the number of registered content types.
func (r *Registry) Len() int {
	return len(r.parsers)
}

func normalizeContentType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}
