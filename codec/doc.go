// Package codec encodes diagram specs for storage and decodes them with a
// hard ceiling on decompressed size.
//
// A spec is stored as a single wire string. Text starting with the "gz:"
// prefix is standard base64 of a gzip stream of the spec's JSON; anything
// else is the JSON itself. In memory the two cases are the Payload sum
// type, built with Raw or Compressed and parsed with ParsePayload.
//
// # Encoding
//
// Compress serializes the spec canonically. Specs below Config.Threshold
// (10 KiB) stay raw. Larger ones are gzipped and kept compressed only when
// the wire form is at least Config.MinSavings (20%) smaller than the JSON.
// Compression problems never surface to the caller: the raw form is used.
//
// # Decoding
//
// Decompress rejects base64 outside the standard alphabet, then inflates
// the gzip stream in Config.ChunkSize reads. Once the running total passes
// Config.MaxDecompressedBytes (50 MiB) the stream is abandoned and a
// *LimitError is returned; it matches ErrDecompressionLimit and never
// ErrDecode, so callers can tell oversized input from corrupt input.
// Corrupt input yields a *DecodeError naming the failing stage.
//
// Decoded specs pass through the configured diagram.Validator. A schema
// mismatch is logged and the repaired spec is returned without error.
package codec
