package manifest

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
)

// Files is the ordered path -> record mapping of a manifest. It encodes as
// a JSON object whose keys appear in path order, so encoding is stable.
type Files []FileRecord

// Lookup finds a record by path with a binary search.
func (f Files) Lookup(path string) (FileRecord, bool) {
	i := sort.Search(len(f), func(i int) bool { return f[i].Path >= path })
	if i < len(f) && f[i].Path == path {
		return f[i], true
	}
	return FileRecord{}, false
}

// MarshalJSON writes the records as an object keyed by path.
func (f Files) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rec.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to encode path %s: %w", rec.Path, err)
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", rec.Path, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keyed by path and restores path order.
// A path that appears twice is an error.
func (f *Files) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("files: expected an object, got %v", tok)
	}

	seen := make(map[string]bool)
	var out Files
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		path, ok := tok.(string)
		if !ok {
			return fmt.Errorf("files: expected a path key, got %v", tok)
		}
		if seen[path] {
			return fmt.Errorf("files: duplicate path %q", path)
		}
		seen[path] = true

		var rec FileRecord
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("files: record %s: %w", path, err)
		}
		rec.Path = path
		out = append(out, rec)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if out == nil {
		out = Files{}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	*f = out
	return nil
}
