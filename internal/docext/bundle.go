package docext

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
)

// BundleFile is one named entry of a merged attachment bundle.
type BundleFile struct {
	Name string
	Data []byte
}

// ZipBundle packs proofs into a single zip archive so a date range of
// attachments can be delivered as one upload. Duplicate names get a
// numeric suffix instead of clobbering each other.
func ZipBundle(files []BundleFile) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	seen := make(map[string]int)
	for _, f := range files {
		name := path.Base(f.Name)
		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], n, ext)
		}
		seen[path.Base(f.Name)]++

		entry, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("creating zip entry %s: %w", name, err)
		}
		if _, err := entry.Write(f.Data); err != nil {
			return nil, fmt.Errorf("writing zip entry %s: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zip: %w", err)
	}
	return buf.Bytes(), nil
}
