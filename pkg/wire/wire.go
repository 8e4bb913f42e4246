// Package wire defines the request/response envelopes exchanged between
// client and server. Envelopes are CBOR-encoded (canonical profile) and
// carried as opaque frames by the transports.
package wire

import (
	cbor "github.com/fxamacker/cbor/v2"

	"reqflow/pkg/api"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

// Request is the client-to-server envelope for one operation.
type Request struct {
	ID      string            `cbor:"id"`
	Op      string            `cbor:"op"`
	Format  string            `cbor:"fmt,omitempty"`
	Payload []byte            `cbor:"pl,omitempty"`
	Meta    map[string]string `cbor:"meta,omitempty"`
}

// Response is the server-to-client envelope correlated by ID. Err carries a
// textual operation error; an empty Err means success.
type Response struct {
	ID      string            `cbor:"id"`
	Format  string            `cbor:"fmt,omitempty"`
	Payload []byte            `cbor:"pl,omitempty"`
	Meta    map[string]string `cbor:"meta,omitempty"`
	Err     string            `cbor:"err,omitempty"`
}

// FromAPI builds a wire request from an api.Request.
func FromAPI(req api.Request) Request {
	return Request{
		ID:      req.ID,
		Op:      req.Op,
		Format:  string(req.Format),
		Payload: req.Payload,
		Meta:    req.Meta,
	}
}

// ToAPI converts a wire request back into an api.Request.
func (r Request) ToAPI() api.Request {
	return api.Request{
		ID:      r.ID,
		Op:      r.Op,
		Format:  api.Format(r.Format),
		Payload: r.Payload,
		Meta:    r.Meta,
	}
}

// Result converts a response into an api.Result.
func (r Response) Result() api.Result {
	return api.Result{
		Format:  api.Format(r.Format),
		Payload: r.Payload,
		Meta:    r.Meta,
	}
}

func (r Request) Encode() ([]byte, error) { return encMode.Marshal(r) }

func DecodeRequest(b []byte) (Request, error) {
	var r Request
	err := decMode.Unmarshal(b, &r)
	return r, err
}

func (r Response) Encode() ([]byte, error) { return encMode.Marshal(r) }

func DecodeResponse(b []byte) (Response, error) {
	var r Response
	err := decMode.Unmarshal(b, &r)
	return r, err
}
