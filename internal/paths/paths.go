package paths

// Point is a single 2D coordinate in asset space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ResolvedPath is an immutable named point sequence.
// An empty Points slice is valid and renders as nothing.
type ResolvedPath struct {
	ID     string
	Points []Point
}

// Macro path identifiers expanded before resolution.
const (
	MacroBodyFull = "body_full"

	BodyOuter = "body_outer"
	BodyInner = "body_inner"
)

// ExpandMacros expands macro identifiers in an id list.
// "body_full" expands in place to "body_outer", "body_inner";
// all other ids pass through unchanged. Order is preserved.
func ExpandMacros(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == MacroBodyFull {
			out = append(out, BodyOuter, BodyInner)
			continue
		}
		out = append(out, id)
	}
	return out
}
