// Package wireproto implements the C4 client-facing protocol: a length
// prefixed, opcode-tagged TCP framing with msgpack payloads, multiplexed by
// request id over a single connection. It sits directly on
// top of internal/storagenode — a frame in, a storagenode call, a frame out
// — and knows nothing about which shard it is serving.
package wireproto
