// Package approval gates publication on an explicit human decision.
//
// Every item that survives deduplication gets exactly one approval request.
// A decision is recorded once; later decisions fail with ErrAlreadyDecided
// and leave the first one in place.
package approval
