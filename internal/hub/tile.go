package hub

import (
	"fmt"
	"math"

	"standwatch/internal/domain"
)

// TileID returns the slippy-map tile "zoom/x/y" containing lat, lon.
func TileID(lat, lon float64, zoom int) string {
	x, y := tileXY(lat, lon, zoom)
	return fmt.Sprintf("%d/%d/%d", zoom, x, y)
}

// TileOf is TileID for a (lon, lat) coordinate.
func TileOf(c domain.Coordinate, zoom int) string {
	return TileID(c.Latitude(), c.Longitude(), zoom)
}

func tileXY(lat, lon float64, zoom int) (int, int) {
	n := math.Exp2(float64(zoom))
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	latRad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	return clamp(x, 0, maxTile), clamp(y, 0, maxTile)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func ParseTileID(tileID string) (zoom, x, y int, ok bool) {
	n, err := fmt.Sscanf(tileID, "%d/%d/%d", &zoom, &x, &y)
	if err != nil || n != 3 {
		return 0, 0, 0, false
	}
	return zoom, x, y, true
}

// maxBBoxTiles bounds subscriptions derived from a bounding box.
const maxBBoxTiles = 256

// TilesInBBox returns the tiles intersecting bb at zoom, or nil when the box
// would cover more than maxBBoxTiles tiles.
func TilesInBBox(bb domain.BoundingBox, zoom int) []string {
	x1, y1 := tileXY(bb.MaxLat, bb.MinLon, zoom)
	x2, y2 := tileXY(bb.MinLat, bb.MaxLon, zoom)
	if x2 < x1 || y2 < y1 || (x2-x1+1)*(y2-y1+1) > maxBBoxTiles {
		return nil
	}

	tiles := make([]string, 0, (x2-x1+1)*(y2-y1+1))
	for x := x1; x <= x2; x++ {
		for y := y1; y <= y2; y++ {
			tiles = append(tiles, fmt.Sprintf("%d/%d/%d", zoom, x, y))
		}
	}
	return tiles
}
