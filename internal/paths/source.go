package paths

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Source loads raw path geometry from the asset store.
// variant selects a styled asset family; implementations return an
// empty result for missing or invalid assets rather than failing hard.
type Source interface {
	// LoadFlatPath returns the single point sequence stored under id.
	LoadFlatPath(id, variant string) ([]Point, error)
	// LoadMultiPath returns a bundle of sub-paths stored under id,
	// keyed by sub-path id.
	LoadMultiPath(id, variant string) (map[string][]Point, error)
}

// flatFile is the on-disk shape of a single-path asset.
type flatFile struct {
	ID     string      `json:"id"`
	Points [][]float64 `json:"points"`
}

// multiFile is the on-disk shape of a multi-path bundle.
type multiFile struct {
	ID    string                 `json:"id"`
	Paths map[string][][]float64 `json:"paths"`
}

// FileSource reads path assets as JSON files from a directory.
// Assets are looked up as "<id>_<variant>.json" first, then "<id>.json".
type FileSource struct {
	dir string
}

// NewFileSource creates a source rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// LoadFlatPath implements Source.
func (s *FileSource) LoadFlatPath(id, variant string) ([]Point, error) {
	data, err := s.read(id, variant)
	if err != nil {
		return nil, err
	}

	var f flatFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid path asset %s: %w", id, err)
	}
	return toPoints(f.Points), nil
}

// LoadMultiPath implements Source.
func (s *FileSource) LoadMultiPath(id, variant string) (map[string][]Point, error) {
	data, err := s.read(id, variant)
	if err != nil {
		return nil, err
	}

	var f multiFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid multi-path asset %s: %w", id, err)
	}
	if len(f.Paths) == 0 {
		return nil, fmt.Errorf("multi-path asset %s has no sub-paths", id)
	}

	out := make(map[string][]Point, len(f.Paths))
	for subID, raw := range f.Paths {
		out[subID] = toPoints(raw)
	}
	return out, nil
}

// read loads the asset file for id, preferring the variant-specific file.
func (s *FileSource) read(id, variant string) ([]byte, error) {
	if variant != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, id+"_"+variant+".json"))
		if err == nil {
			return data, nil
		}
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("path asset %s not found: %w", id, err)
	}
	return data, nil
}

func toPoints(raw [][]float64) []Point {
	pts := make([]Point, 0, len(raw))
	for _, p := range raw {
		if len(p) < 2 {
			continue
		}
		pts = append(pts, Point{X: p[0], Y: p[1]})
	}
	return pts
}
