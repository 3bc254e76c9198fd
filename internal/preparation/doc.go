// Package preparation turns a unique item into a publish candidate: it
// generates the title, description and tags shown to viewers and opens the
// approval request a human must answer before anything is published.
package preparation
