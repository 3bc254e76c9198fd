// Package dedupe keeps near-duplicate content away from publication. The
// Gate compares a transformed item's fingerprint with every accepted item
// and admits unique ones into the index; Stage wires it into the executor.
package dedupe
