// Package transport abstracts the links the client and server exchange
// wire envelopes over. Implementations live in subpackages: tcp and quic
// for real networks, mem for in-process tests.
package transport
