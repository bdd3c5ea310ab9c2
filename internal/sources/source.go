package sources

import (
	"fmt"
	"strings"
)

// Source describes where a batch's input items come from.
type Source interface {
	// Describe returns a short human readable form used in reports.
	Describe() string
	isSource()
}

// SingleFile is one local video.
type SingleFile struct {
	Path string
}

// Files is an ordered list of local videos.
type Files struct {
	Paths []string
}

// Archive is a local zip file holding videos.
type Archive struct {
	Path string
}

// RemoteURL is a zip archive or single video fetched over HTTP(S).
type RemoteURL struct {
	URL string
}

// Manifest is a YAML file listing paths, archives and URLs.
type Manifest struct {
	Path string
}

func (SingleFile) isSource() {}
func (Files) isSource()      {}
func (Archive) isSource()    {}
func (RemoteURL) isSource()  {}
func (Manifest) isSource()   {}

func (s SingleFile) Describe() string { return "file:" + s.Path }
func (s Archive) Describe() string    { return "archive:" + s.Path }
func (s RemoteURL) Describe() string  { return "url:" + s.URL }
func (s Manifest) Describe() string   { return "manifest:" + s.Path }

func (s Files) Describe() string {
	switch len(s.Paths) {
	case 0:
		return "files:none"
	case 1:
		return "file:" + s.Paths[0]
	default:
		return fmt.Sprintf("files:%s (+%d more)", s.Paths[0], len(s.Paths)-1)
	}
}

// FromArgs builds a Source from command line inputs. Exactly one of the
// flag-style inputs may be set; plain paths are used otherwise.
func FromArgs(paths []string, archive, url, manifest string) (Source, error) {
	var chosen []Source
	if len(paths) == 1 {
		chosen = append(chosen, SingleFile{Path: paths[0]})
	} else if len(paths) > 1 {
		chosen = append(chosen, Files{Paths: paths})
	}
	if strings.TrimSpace(archive) != "" {
		chosen = append(chosen, Archive{Path: archive})
	}
	if strings.TrimSpace(url) != "" {
		chosen = append(chosen, RemoteURL{URL: url})
	}
	if strings.TrimSpace(manifest) != "" {
		chosen = append(chosen, Manifest{Path: manifest})
	}
	switch len(chosen) {
	case 0:
		return nil, fmt.Errorf("no input given: pass video files, --archive, --url, or --manifest")
	case 1:
		return chosen[0], nil
	default:
		return nil, fmt.Errorf("choose one input kind: files, --archive, --url, or --manifest")
	}
}
