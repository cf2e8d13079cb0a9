package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileDescRoundTrip(t *testing.T) {
	in := "part=0 width=256 height=256 tileposx=0 tileposy=0 tilewidth=3840 tileheight=3840 ver=1"
	t1, err := ParseTileDesc(in)
	require.NoError(t, err)
	assert.Equal(t, 0, t1.Part)
	assert.Equal(t, int32(256), t1.Width)
	assert.Equal(t, int64(3840), t1.TileWidth)
	assert.Equal(t, 1, t1.Version)

	t1.ImgSize = 1234
	out := t1.Serialize()
	t2, err := ParseTileDesc(out[len("tile:"):])
	require.NoError(t, err)
	assert.Equal(t, t1.Part, t2.Part)
	assert.Equal(t, t1.Width, t2.Width)
	assert.Equal(t, t1.Height, t2.Height)
	assert.Equal(t, t1.TilePosX, t2.TilePosX)
	assert.Equal(t, t1.TilePosY, t2.TilePosY)
	assert.Equal(t, t1.TileWidth, t2.TileWidth)
	assert.Equal(t, t1.TileHeight, t2.TileHeight)
	assert.Equal(t, t1.Version, t2.Version)
}

func TestTileCombinedParsesPositionLists(t *testing.T) {
	in := "part=0 width=256 height=256 tilewidth=3840 tileheight=3840 ver=1 tileposx=0,3840,0,3840 tileposy=0,0,3840,3840"
	tc, err := ParseTileCombined(in)
	require.NoError(t, err)
	require.Len(t, tc.Positions, 4)
	assert.Equal(t, int64(3840), tc.Positions[1].TilePosX)
	assert.Equal(t, int64(3840), tc.Positions[2].TilePosY)
}

func TestTileCombinedMismatchedListsError(t *testing.T) {
	in := "part=0 width=256 height=256 tilewidth=3840 tileheight=3840 tileposx=0,3840 tileposy=0"
	_, err := ParseTileCombined(in)
	assert.Error(t, err)
}

func TestTileCombinedSerializeEmitsImgSizes(t *testing.T) {
	tc := TileCombined{
		Part: 0, Width: 256, Height: 256, TileWidth: 3840, TileHeight: 3840,
		Positions: []Position{{TilePosX: 0, TilePosY: 0, ImgSize: 100}, {TilePosX: 3840, TilePosY: 0, ImgSize: 200}},
	}
	out := tc.Serialize()
	assert.Contains(t, out, "imgsize=100,200")
	assert.Contains(t, out, "tileposx=0,3840")
}
