// Package codec provides pluggable envelope encodings.
package codec

// Codec defines a simple interface for marshaling typed messages.
// Implementations should be deterministic and safe for cross-device exchange.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps short names and content types to codecs.
type Registry struct {
	byName map[string]Codec
}

// NewRegistry constructs a registry preloaded with the built-in codecs.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(CBOR())
	return r
}

// Register adds a codec under both its short name and content type.
func (r *Registry) Register(c Codec) {
	r.byName[c.Name()] = c
	r.byName[c.ContentType()] = c
}

// Get returns a codec by short name or content type, or nil.
func (r *Registry) Get(name string) Codec { return r.byName[name] }
