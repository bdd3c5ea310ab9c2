package transcriber

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Result is the outcome of a transcription.
type Result struct {
	Text string
	// Degraded is set when no usable text was recognised; Reason explains why.
	Degraded bool
	Reason   string
}

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, outDir string) (Result, error)
	// Commands lists the executables the transcriber needs.
	Commands() []string
}

// ReasonUnclearAudio is reported when recognition produced no text.
const ReasonUnclearAudio = "unclear audio"

// iso2 returns the ISO 639-1 form of code, or "" when it cannot be resolved.
func iso2(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
