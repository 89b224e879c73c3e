package volume

import (
	"strings"

	"github.com/rstms/cfs/block"
)

// Resolve walks path starting from directory base. Empty segments and
// "." are skipped and ".." moves to the parent (the root is its own
// parent). A segment naming a file ends the walk; anything after it is
// ignored. When a segment matches nothing, the index of the last node
// resolved is returned along with a *NotFoundError.
func (v *Volume) Resolve(path string, base block.Index) (block.Index, error) {
	for _, segment := range strings.Split(path, "/") {
		switch segment {
		case "", ".":
			continue
		case "..":
			dir, err := v.store.Dir(base)
			if err != nil {
				return base, err
			}
			base = dir.Parent
			continue
		}

		listing, err := v.ListDir(base)
		if err != nil {
			return base, err
		}
		found := false
		for _, entry := range listing.Dirs {
			if entry.Name == segment {
				base = entry.Index
				found = true
				break
			}
		}
		if found {
			continue
		}
		for _, entry := range listing.Files {
			if entry.Name == segment {
				return entry.Index, nil
			}
		}
		return base, &NotFoundError{Path: path, Segment: segment, Index: base}
	}
	return base, nil
}
