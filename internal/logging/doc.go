// Package logging builds the slog loggers used by reelpipe.
//
// Console output is a single line per record with the component and item id
// hoisted in front of the message. A JSON copy can be fanned out to a file
// through slog-multi; secret-bearing attributes are redacted before either
// sink sees them. WithContext tags lines with the item, stage, trigger and
// correlation id carried on a context.
package logging
