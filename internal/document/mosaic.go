package document

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/collabora-online/kitworker/internal/engine"
)

// renderArea bounds every sub-tile of a TileCombined in twips.
type renderArea struct {
	left, top, width, height int64
}

func combinedRenderArea(tc TileCombined) renderArea {
	minX, minY := tc.Positions[0].TilePosX, tc.Positions[0].TilePosY
	maxX, maxY := minX, minY
	for _, p := range tc.Positions[1:] {
		if p.TilePosX < minX {
			minX = p.TilePosX
		}
		if p.TilePosY < minY {
			minY = p.TilePosY
		}
		if p.TilePosX > maxX {
			maxX = p.TilePosX
		}
		if p.TilePosY > maxY {
			maxY = p.TilePosY
		}
	}
	return renderArea{
		left:   minX,
		top:    minY,
		width:  maxX - minX + tc.TileWidth,
		height: maxY - minY + tc.TileHeight,
	}
}

// paintSingleTile paints one tile and PNG-encodes it. doc must already be
// the correct native document handle, selected under the engine mutex by
// the caller.
func paintSingleTile(doc engine.Document, t TileDesc) ([]byte, error) {
	buf := make([]byte, int(t.Width)*int(t.Height)*4)
	if err := doc.PaintPartTile(buf, t.Part, t.Width, t.Height, t.TilePosX, t.TilePosY, t.TileWidth, t.TileHeight); err != nil {
		return nil, fmt.Errorf("paint tile: %w", err)
	}
	return encodeBGRAPNG(buf, int(t.Width), int(t.Height))
}

// paintCombinedTiles implements spec.md §4.5's mosaic math: render the
// bounding area once into a single pixmap sized to hold every requested
// sub-tile at uniform pixel dimensions, then slice and PNG-encode each
// sub-rectangle independently.
func paintCombinedTiles(doc engine.Document, tc TileCombined) ([][]byte, error) {
	if len(tc.Positions) == 0 {
		return nil, fmt.Errorf("tilecombine: no positions")
	}
	area := combinedRenderArea(tc)

	tilesByX := int(area.width / tc.TileWidth)
	tilesByY := int(area.height / tc.TileHeight)
	pixmapWidth := tilesByX * int(tc.Width)
	pixmapHeight := tilesByY * int(tc.Height)

	pixmap := make([]byte, pixmapWidth*pixmapHeight*4)
	if err := doc.PaintPartTile(pixmap, tc.Part, int32(pixmapWidth), int32(pixmapHeight), area.left, area.top, area.width, area.height); err != nil {
		return nil, fmt.Errorf("paint tilecombine: %w", err)
	}

	out := make([][]byte, len(tc.Positions))
	for i, p := range tc.Positions {
		col := int((p.TilePosX - area.left) / tc.TileWidth)
		row := int((p.TilePosY - area.top) / tc.TileHeight)
		sub := extractSubRect(pixmap, pixmapWidth, col*int(tc.Width), row*int(tc.Height), int(tc.Width), int(tc.Height))
		encoded, err := encodeBGRAPNG(sub, int(tc.Width), int(tc.Height))
		if err != nil {
			return nil, fmt.Errorf("encode sub-tile %d: %w", i, err)
		}
		out[i] = encoded
	}
	return out, nil
}

// extractSubRect copies a w*h BGRA rectangle out of a stride-pixmapWidth
// pixmap, starting at (x, y) in pixels.
func extractSubRect(pixmap []byte, pixmapWidth, x, y, w, h int) []byte {
	out := make([]byte, w*h*4)
	for row := 0; row < h; row++ {
		srcOff := ((y+row)*pixmapWidth + x) * 4
		dstOff := row * w * 4
		copy(out[dstOff:dstOff+w*4], pixmap[srcOff:srcOff+w*4])
	}
	return out
}

// encodeBGRAPNG converts a raw BGRA buffer the engine paints into a PNG,
// the only wire format spec.md's tile frames carry.
func encodeBGRAPNG(buf []byte, width, height int) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		b, g, r, a := buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3]
		img.Set(i%width, i/width, color.NRGBA{R: r, G: g, B: b, A: a})
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
