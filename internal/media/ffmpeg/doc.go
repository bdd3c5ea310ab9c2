// Package ffmpeg builds and runs the ffmpeg invocations the pipeline needs:
// audio extraction, muxing a vocal stem back onto video frames, and stripping
// audio from a video.
package ffmpeg
