// Package cryptobox seals small secrets for durable storage.
//
// It wraps a plaintext in a versioned envelope encrypted with
// ChaCha20-Poly1305 under a key derived from a passphrase via scrypt. The
// account pickle and other at-rest secrets use it; the ratchet algorithms
// themselves live in an external library and are never reimplemented here.
package cryptobox
