// Package fileutil provides verified, cancellable file copies used when
// media moves between pipeline directories.
package fileutil
