package document

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabora-online/kitworker/internal/engine/enginefake"
)

func TestPaintSingleTileProducesCorrectlySizedPNG(t *testing.T) {
	office := enginefake.New()
	doc, err := office.DocumentLoad("file:///t.odt")
	require.NoError(t, err)

	td := TileDesc{Part: 0, Width: 256, Height: 256, TileWidth: 3840, TileHeight: 3840}
	out, err := paintSingleTile(doc, td)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, 256, img.Bounds().Dx())
	require.Equal(t, 256, img.Bounds().Dy())
}

func TestPaintCombinedTilesLayout2x2(t *testing.T) {
	office := enginefake.New()
	doc, err := office.DocumentLoad("file:///t.odt")
	require.NoError(t, err)

	tc := TileCombined{
		Part: 0, Width: 256, Height: 256, TileWidth: 3840, TileHeight: 3840,
		Positions: []Position{
			{TilePosX: 0, TilePosY: 0},
			{TilePosX: 3840, TilePosY: 0},
			{TilePosX: 0, TilePosY: 3840},
			{TilePosX: 3840, TilePosY: 3840},
		},
	}
	images, err := paintCombinedTiles(doc, tc)
	require.NoError(t, err)
	require.Len(t, images, 4)
	for _, img := range images {
		decoded, err := png.Decode(bytes.NewReader(img))
		require.NoError(t, err)
		require.Equal(t, 256, decoded.Bounds().Dx())
		require.Equal(t, 256, decoded.Bounds().Dy())
	}
}
