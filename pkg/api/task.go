package api

// Format names the serialization of a payload; values are codec content types
// (see pkg/codec), e.g. "application/json" or "application/cbor".
type Format string

const (
	FormatJSON  Format = "application/json"
	FormatCBOR  Format = "application/cbor"
	FormatProto Format = "application/x-protobuf"
)

// Request describes one unit of work handed to the scheduler. Payload is
// serialized according to Format; the scheduler treats it as opaque bytes.
type Request struct {
	ID      string            // unique request id (caller- or scheduler-assigned)
	Op      string            // operation/handler name
	Format  Format            // serialization format of Payload
	Payload []byte            // raw payload bytes
	Meta    map[string]string // optional metadata/headers
}

// Result is the outcome produced for one request. Payload is serialized
// according to Format; Meta carries server-side statistics and headers.
type Result struct {
	Format  Format
	Payload []byte
	Meta    map[string]string
}

// ResultSet is the conventional decoded shape of a tabular Result payload.
type ResultSet struct {
	Columns []string `json:"columns,omitempty" cbor:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty" cbor:"rows,omitempty"`
}

// Message is a typed payload a caller may use before serialization.
// Use pkg/codec to marshal/unmarshal into Request/Result Payload.
type Message any
