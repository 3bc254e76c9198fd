// Package fingerprint implements the similarity index used by the
// deduplication gate. Fingerprints are 64-bit perceptual hashes compared by
// Hamming distance; records live in the state store and are never removed.
package fingerprint
