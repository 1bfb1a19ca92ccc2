package paths

import (
	"sort"
)

// Cache memoizes resolved paths for the lifetime of one playback
// session. It is append-only; Reset clears it when a session ends.
//
// A resolve that fails caches an empty path under the requested id so a
// missing asset degrades to "nothing drawn" and is never re-fetched.
type Cache struct {
	source  Source
	variant string

	resolved map[string]ResolvedPath
	// bundles maps a bundle id to the composite keys it expanded to,
	// so repeated resolves skip the source entirely.
	bundles map[string][]string
}

// NewCache creates a cache over the given source and asset variant.
func NewCache(source Source, variant string) *Cache {
	return &Cache{
		source:   source,
		variant:  variant,
		resolved: make(map[string]ResolvedPath),
		bundles:  make(map[string][]string),
	}
}

// Resolve returns the paths stored under id, already macro-expanded by
// the caller. A flat asset yields one ResolvedPath under id; a
// multi-path bundle yields one ResolvedPath per sub-path under the
// composite key "<id>_<subID>", in sorted sub-id order.
func (c *Cache) Resolve(id string) []ResolvedPath {
	if keys, ok := c.bundles[id]; ok {
		out := make([]ResolvedPath, 0, len(keys))
		for _, k := range keys {
			out = append(out, c.resolved[k])
		}
		return out
	}
	if rp, ok := c.resolved[id]; ok {
		return []ResolvedPath{rp}
	}

	// Bundle lookup first: a bundle file never parses as a flat path,
	// and a flat file fails the bundle parse, so the order is safe.
	if subs, err := c.source.LoadMultiPath(id, c.variant); err == nil {
		subIDs := make([]string, 0, len(subs))
		for subID := range subs {
			subIDs = append(subIDs, subID)
		}
		sort.Strings(subIDs)

		keys := make([]string, 0, len(subIDs))
		out := make([]ResolvedPath, 0, len(subIDs))
		for _, subID := range subIDs {
			key := id + "_" + subID
			rp := ResolvedPath{ID: key, Points: subs[subID]}
			c.resolved[key] = rp
			keys = append(keys, key)
			out = append(out, rp)
		}
		c.bundles[id] = keys
		return out
	}

	pts, err := c.source.LoadFlatPath(id, c.variant)
	if err != nil {
		pts = nil
	}
	rp := ResolvedPath{ID: id, Points: pts}
	c.resolved[id] = rp
	return []ResolvedPath{rp}
}

// ResolveAll resolves a list of ids in order, flattening bundles.
func (c *Cache) ResolveAll(ids []string) []ResolvedPath {
	var out []ResolvedPath
	for _, id := range ids {
		out = append(out, c.Resolve(id)...)
	}
	return out
}

// Reset clears all cached paths. Called at session end.
func (c *Cache) Reset() {
	c.resolved = make(map[string]ResolvedPath)
	c.bundles = make(map[string][]string)
}
