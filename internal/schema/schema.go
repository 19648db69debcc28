// Package schema holds the compile-time message schema digest and the
// constant-time comparison used to check a peer's digest against it during
// handshake. The digest itself is never computed at runtime: per the
// handshake contract, it identifies the exact build of the message schema
// the server was compiled against.
package schema

import "crypto/subtle"

// Size is the fixed length in bytes of a schema digest.
const Size = 32

// Digest is the compile-time schema digest for this server build.
//
// This value stands in for the build-generated constant described in the
// handshake contract: a real release pipeline regenerates it from the
// canonical message descriptor set (sorted file order, imports included,
// source info excluded) and bakes it in here or in a generated sibling
// file. It is declared as a plain byte array, never recomputed per
// connection or per process.
var Digest = [Size]byte{
	0x4e, 0x8f, 0x1a, 0x7d, 0x2c, 0x9b, 0x3e, 0x60,
	0x15, 0xa4, 0xd8, 0x72, 0xf1, 0x0e, 0x6c, 0x93,
	0xb5, 0x28, 0x4a, 0xe7, 0x91, 0x3d, 0x67, 0xc2,
	0x08, 0x5f, 0xaa, 0x3c, 0x76, 0x19, 0xe4, 0x2b,
}

// Equal reports whether candidate matches Digest, in constant time with
// respect to the comparison itself. It does not normalize length: a
// mismatched length is rejected by the caller before Equal is invoked (see
// internal/handshake), since the reject message distinguishes a length
// mismatch from a byte mismatch.
func Equal(candidate []byte) bool {
	if len(candidate) != Size {
		return false
	}
	return subtle.ConstantTimeCompare(Digest[:], candidate) == 1
}
