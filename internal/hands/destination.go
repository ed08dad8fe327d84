package hands

import (
	"path"
	"strings"
)

const (
	DefaultRawSegment   = "raw"
	DefaultSplitSegment = "split"
)

// Mapper derives the split directory of a raw history from its location.
// Locations are slash separated for every backend.
type Mapper struct {
	RawSegment   string
	SplitSegment string
}

// DefaultMapper rewrites ".../raw/..." to ".../split/...".
func DefaultMapper() Mapper {
	return Mapper{RawSegment: DefaultRawSegment, SplitSegment: DefaultSplitSegment}
}

// Dir rewrites the first path segment equal to RawSegment into SplitSegment
// and strips the extension of the last segment.
//
// A location without a raw segment only loses its extension, so
// "data/x.txt" maps to "data/x". Such locations are not histories and
// distinct ones may share a directory, as may locations that also hold the
// split segment. IsSource rejects both.
func (m Mapper) Dir(source string) string {
	segments := strings.Split(source, "/")
	if i := m.rawIndex(segments); i >= 0 {
		segments[i] = m.SplitSegment
	}

	last := len(segments) - 1
	if ext := path.Ext(segments[last]); ext != "" && ext != segments[last] {
		segments[last] = strings.TrimSuffix(segments[last], ext)
	}
	return strings.Join(segments, "/")
}

// IsSource reports whether location looks like a raw history: it sits under
// the raw segment, has no split segment in its directories and, when ext is
// not empty, ends with ext. Distinct sources sharing ext get distinct
// directories from Dir.
func (m Mapper) IsSource(location, ext string) bool {
	if ext != "" && !strings.HasSuffix(location, ext) {
		return false
	}
	segments := strings.Split(location, "/")
	// The last segment is the file name, not a directory.
	dirs := segments[:len(segments)-1]
	for _, s := range dirs {
		if s == m.SplitSegment {
			return false
		}
	}
	return m.rawIndex(dirs) >= 0
}

// Location is the destination of one hand inside dir.
func (m Mapper) Location(dir, id, ext string) string {
	return dir + "/" + id + ext
}

func (m Mapper) rawIndex(segments []string) int {
	for i, s := range segments {
		if s == m.RawSegment {
			return i
		}
	}
	return -1
}
