// Package artifact keeps the code and SQL a candidate submitted during an
// interview together with the sandbox verdict.
//
// Submissions are append-only per session and returned in submission order.
// The engine writes one entry per SubmitCode or SubmitSQL call; stores can be
// swapped without touching the engine through the Store interface.
package artifact
