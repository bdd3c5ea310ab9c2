// Package transcriber turns a vocal stem into text.
//
// WhisperX is driven through its CLI, either directly or via uvx. Empty
// recognition is reported as a degraded result rather than an error; a tool
// failure is wrapped with services.ErrTranscriptionUnavailable so callers can
// degrade instead of failing the item.
package transcriber
