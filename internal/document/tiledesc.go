package document

import (
	"fmt"
	"strconv"
	"strings"
)

// TileDesc describes one requested or rendered tile. Fields mirror the
// key=value tokens spec.md §6.1 names; RenderID is only emitted when
// debug rendering IDs are enabled.
type TileDesc struct {
	Part       int
	Width      int32
	Height     int32
	TilePosX   int64
	TilePosY   int64
	TileWidth  int64
	TileHeight int64
	Version    int
	ImgSize    int
	RenderID   string
}

// ParseTileDesc parses the key=value tokens following a "tile" command
// line, e.g. "part=0 width=256 height=256 tileposx=0 tileposy=0
// tilewidth=3840 tileheight=3840 ver=1".
func ParseTileDesc(tokens string) (TileDesc, error) {
	fields := parseTokens(tokens)
	var t TileDesc
	var err error
	if t.Part, err = intField(fields, "part"); err != nil {
		return TileDesc{}, err
	}
	if t.Width, err = int32Field(fields, "width"); err != nil {
		return TileDesc{}, err
	}
	if t.Height, err = int32Field(fields, "height"); err != nil {
		return TileDesc{}, err
	}
	if t.TilePosX, err = int64Field(fields, "tileposx"); err != nil {
		return TileDesc{}, err
	}
	if t.TilePosY, err = int64Field(fields, "tileposy"); err != nil {
		return TileDesc{}, err
	}
	if t.TileWidth, err = int64Field(fields, "tilewidth"); err != nil {
		return TileDesc{}, err
	}
	if t.TileHeight, err = int64Field(fields, "tileheight"); err != nil {
		return TileDesc{}, err
	}
	// ver is optional; a missing version defaults to 0 rather than
	// rejecting the request, matching the original's tolerant parsing of
	// an optional token.
	if v, ok := fields["ver"]; ok {
		t.Version, err = strconv.Atoi(v)
		if err != nil {
			return TileDesc{}, fmt.Errorf("tiledesc: bad ver %q: %w", v, err)
		}
	}
	return t, nil
}

// Serialize renders the "tile: ..." header line, including imgsize and,
// when non-empty, renderid.
func (t TileDesc) Serialize() string {
	var b strings.Builder
	b.WriteString("tile:")
	fmt.Fprintf(&b, " part=%d", t.Part)
	fmt.Fprintf(&b, " width=%d", t.Width)
	fmt.Fprintf(&b, " height=%d", t.Height)
	fmt.Fprintf(&b, " tileposx=%d", t.TilePosX)
	fmt.Fprintf(&b, " tileposy=%d", t.TilePosY)
	fmt.Fprintf(&b, " tilewidth=%d", t.TileWidth)
	fmt.Fprintf(&b, " tileheight=%d", t.TileHeight)
	fmt.Fprintf(&b, " ver=%d", t.Version)
	fmt.Fprintf(&b, " imgsize=%d", t.ImgSize)
	if t.RenderID != "" {
		fmt.Fprintf(&b, " renderid=%s", t.RenderID)
	}
	return b.String()
}

// TileCombined is a homogeneous batch of tiles sharing part/size, varying
// only in position, per spec.md §6.1.
type TileCombined struct {
	Part       int
	Width      int32
	Height     int32
	TileWidth  int64
	TileHeight int64
	Version    int
	Positions  []Position
}

// Position is one sub-tile's location within a TileCombined request.
type Position struct {
	TilePosX int64
	TilePosY int64
	ImgSize  int
}

// ParseTileCombined parses a "tilecombine" command's tokens, where
// tileposx and tileposy carry comma-separated lists, one entry per
// sub-tile.
func ParseTileCombined(tokens string) (TileCombined, error) {
	fields := parseTokens(tokens)
	var tc TileCombined
	var err error
	if tc.Part, err = intField(fields, "part"); err != nil {
		return TileCombined{}, err
	}
	if tc.Width, err = int32Field(fields, "width"); err != nil {
		return TileCombined{}, err
	}
	if tc.Height, err = int32Field(fields, "height"); err != nil {
		return TileCombined{}, err
	}
	if tc.TileWidth, err = int64Field(fields, "tilewidth"); err != nil {
		return TileCombined{}, err
	}
	if tc.TileHeight, err = int64Field(fields, "tileheight"); err != nil {
		return TileCombined{}, err
	}
	if v, ok := fields["ver"]; ok {
		tc.Version, _ = strconv.Atoi(v)
	}

	xs, err := int64List(fields, "tileposx")
	if err != nil {
		return TileCombined{}, err
	}
	ys, err := int64List(fields, "tileposy")
	if err != nil {
		return TileCombined{}, err
	}
	if len(xs) != len(ys) {
		return TileCombined{}, fmt.Errorf("tilecombine: tileposx/tileposy length mismatch (%d vs %d)", len(xs), len(ys))
	}
	tc.Positions = make([]Position, len(xs))
	for i := range xs {
		tc.Positions[i] = Position{TilePosX: xs[i], TilePosY: ys[i]}
	}
	return tc, nil
}

// Serialize renders the "tilecombine: ..." header line with the recorded
// per-tile imgsize list, which callers fill in after rendering.
func (tc TileCombined) Serialize() string {
	var b strings.Builder
	b.WriteString("tilecombine:")
	fmt.Fprintf(&b, " part=%d", tc.Part)
	fmt.Fprintf(&b, " width=%d", tc.Width)
	fmt.Fprintf(&b, " height=%d", tc.Height)
	fmt.Fprintf(&b, " tilewidth=%d", tc.TileWidth)
	fmt.Fprintf(&b, " tileheight=%d", tc.TileHeight)
	fmt.Fprintf(&b, " ver=%d", tc.Version)

	xs := make([]string, len(tc.Positions))
	ys := make([]string, len(tc.Positions))
	sizes := make([]string, len(tc.Positions))
	for i, p := range tc.Positions {
		xs[i] = strconv.FormatInt(p.TilePosX, 10)
		ys[i] = strconv.FormatInt(p.TilePosY, 10)
		sizes[i] = strconv.Itoa(p.ImgSize)
	}
	fmt.Fprintf(&b, " tileposx=%s", strings.Join(xs, ","))
	fmt.Fprintf(&b, " tileposy=%s", strings.Join(ys, ","))
	fmt.Fprintf(&b, " imgsize=%s", strings.Join(sizes, ","))
	return b.String()
}

func parseTokens(s string) map[string]string {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}

func intField(fields map[string]string, key string) (int, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("tiledesc: missing %s", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("tiledesc: bad %s %q: %w", key, v, err)
	}
	return n, nil
}

func int32Field(fields map[string]string, key string) (int32, error) {
	n, err := intField(fields, key)
	return int32(n), err
}

func int64Field(fields map[string]string, key string) (int64, error) {
	v, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("tiledesc: missing %s", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tiledesc: bad %s %q: %w", key, v, err)
	}
	return n, nil
}

func int64List(fields map[string]string, key string) ([]int64, error) {
	v, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("tilecombine: missing %s", key)
	}
	parts := strings.Split(v, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tilecombine: bad %s entry %q: %w", key, p, err)
		}
		out[i] = n
	}
	return out, nil
}
