package codec

import (
	"fmt"

	"reqflow/pkg/api"
)

// Codec defines a simple interface for marshaling typed messages.
// Implementations should be deterministic and safe for cross-node exchange.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types to codecs.
type Registry struct{ byType map[string]Codec }

// NewRegistry constructs a registry preloaded with the built-in codecs:
// JSON, CBOR and Protobuf.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(CBOR())
	r.Register(Proto())
	return r
}

// Register adds a codec.
func (r *Registry) Register(c Codec) { r.byType[c.ContentType()] = c }

// Get returns a codec by content type, or nil.
func (r *Registry) Get(contentType string) Codec { return r.byType[contentType] }

// ForFormat returns the codec registered for a payload format.
func (r *Registry) ForFormat(f api.Format) (Codec, error) {
	if c := r.byType[string(f)]; c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("codec: unsupported format %q", f)
}

// Encode marshals v with the codec registered for f.
func (r *Registry) Encode(f api.Format, v any) ([]byte, error) {
	c, err := r.ForFormat(f)
	if err != nil {
		return nil, err
	}
	return c.Marshal(v)
}

// Decode unmarshals data with the codec registered for f.
func (r *Registry) Decode(f api.Format, data []byte, v any) error {
	c, err := r.ForFormat(f)
	if err != nil {
		return err
	}
	return c.Unmarshal(data, v)
}
