package audio

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"stemsplit/internal/media/ffprobe"
)

// Selection identifies the audio stream to extract from a source video.
type Selection struct {
	Stream ffprobe.Stream
	// Position is the stream's index among audio streams, as used by "-map 0:a:N".
	Position int
}

// MapSpec returns the ffmpeg stream specifier for the selection.
func (s Selection) MapSpec() string {
	return "0:a:" + strconv.Itoa(s.Position)
}

// Label returns a human-readable summary of the selected stream.
func (s Selection) Label() string {
	parts := make([]string, 0, 3)
	if lang := streamLanguage(s.Stream.Tags); lang != "" {
		parts = append(parts, lang)
	}
	codec := s.Stream.CodecLong
	if codec == "" {
		codec = s.Stream.CodecName
	}
	if codec != "" {
		parts = append(parts, codec)
	}
	if ch := channelCount(s.Stream); ch > 0 {
		parts = append(parts, strconv.Itoa(ch)+"ch")
	}
	if len(parts) == 0 {
		return "audio"
	}
	return strings.Join(parts, " | ")
}

// Select picks the audio stream stems should be separated from. Streams in
// the preferred language win, then the default-flagged stream, then the one
// with more channels; earlier streams win ties. The boolean is false when the
// container has no audio.
func Select(streams []ffprobe.Stream, preferredLanguage string) (Selection, bool) {
	best := -1
	bestScore := 0
	var selection Selection
	position := 0
	for _, stream := range streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		score := scoreStream(stream, preferredLanguage)
		if best < 0 || score > bestScore {
			best = position
			bestScore = score
			selection = Selection{Stream: stream, Position: position}
		}
		position++
	}
	return selection, best >= 0
}

func scoreStream(stream ffprobe.Stream, preferredLanguage string) int {
	score := 0
	if SameLanguage(streamLanguage(stream.Tags), preferredLanguage) {
		score += 1000
	}
	if stream.Disposition["default"] == 1 {
		score += 100
	}
	// Commentary and descriptive tracks make poor separation sources.
	if stream.Disposition["comment"] == 1 || stream.Disposition["visual_impaired"] == 1 {
		score -= 500
	}
	score += min(channelCount(stream), 8)
	return score
}

// SameLanguage reports whether two language codes (ISO 639-1, ISO 639-2/T, or BCP 47)
// name the same base language. Empty or unparseable codes never match.
func SameLanguage(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	baseA, _ := ta.Base()
	baseB, _ := tb.Base()
	return baseA == baseB
}

func streamLanguage(tags map[string]string) string {
	for _, key := range []string{"language", "LANGUAGE", "Language"} {
		if value, ok := tags[key]; ok {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}

func channelCount(stream ffprobe.Stream) int {
	if stream.Channels > 0 {
		return stream.Channels
	}
	layout := strings.ToLower(strings.TrimSpace(stream.ChannelLayout))
	switch {
	case strings.HasPrefix(layout, "7.1"):
		return 8
	case strings.HasPrefix(layout, "5.1"):
		return 6
	case layout == "stereo" || strings.HasPrefix(layout, "2.0"):
		return 2
	case layout == "mono":
		return 1
	}
	return 0
}
