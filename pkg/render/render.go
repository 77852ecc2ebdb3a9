package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Options controls how features and rasters are drawn. Every call takes
// its options explicitly; there is no package-level drawing state.
type Options struct {
	// Width and Height are the output size in pixels.
	Width  int
	Height int

	// Padding is the blank margin kept on every side, in pixels.
	Padding int

	Background color.RGBA

	// Fill colours polygon interiors and points.
	Fill color.RGBA

	// Stroke colours lines and polygon outlines. StrokeWidth is in pixels;
	// zero disables outlines.
	Stroke      color.RGBA
	StrokeWidth float64

	// PointRadius is the radius of point markers in pixels.
	PointRadius float64

	// Palette maps raster values from low to high. It needs at least two
	// stops.
	Palette []color.RGBA

	// Logger receives debug output. Nil discards it.
	Logger *zerolog.Logger
}

// DefaultOptions returns 800x600 output with a 16 pixel margin, a white
// background, blue fill, a dark 1.5 pixel stroke, 4 pixel
// points and a viridis-like palette.
func DefaultOptions() Options {
	return Options{
		Width:       800,
		Height:      600,
		Padding:     16,
		Background:  color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		Fill:        color.RGBA{R: 0x3b, G: 0x82, B: 0xc4, A: 0xff},
		Stroke:      color.RGBA{R: 0x1f, G: 0x2a, B: 0x37, A: 0xff},
		StrokeWidth: 1.5,
		PointRadius: 4,
		Palette: []color.RGBA{
			{R: 0x44, G: 0x01, B: 0x54, A: 0xff},
			{R: 0x3b, G: 0x52, B: 0x8b, A: 0xff},
			{R: 0x21, G: 0x90, B: 0x8d, A: 0xff},
			{R: 0x5d, G: 0xc9, B: 0x63, A: 0xff},
			{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff},
		},
	}
}

func (o Options) validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("render: size must be positive, got %dx%d", o.Width, o.Height)
	case o.Padding < 0 || 2*o.Padding >= o.Width || 2*o.Padding >= o.Height:
		return fmt.Errorf("render: padding %d leaves no room in %dx%d", o.Padding, o.Width, o.Height)
	case o.StrokeWidth < 0 || o.PointRadius < 0:
		return fmt.Errorf("render: stroke width and point radius must not be negative")
	}
	return nil
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa".
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// viewport maps world coordinates onto the padded output, keeping the
// aspect ratio and centring the extent. The y axis is flipped.
type viewport struct {
	bound         orb.Bound
	scale         float64
	offX, offY    float64
	width, height int
}

func newViewport(b orb.Bound, o Options) viewport {
	availW := float64(o.Width - 2*o.Padding)
	availH := float64(o.Height - 2*o.Padding)
	dx, dy := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]

	scale := 1.0
	switch {
	case dx > 0 && dy > 0:
		scale = math.Min(availW/dx, availH/dy)
	case dx > 0:
		scale = availW / dx
	case dy > 0:
		scale = availH / dy
	}
	return viewport{
		bound:  b,
		scale:  scale,
		offX:   float64(o.Padding) + (availW-dx*scale)/2,
		offY:   float64(o.Padding) + (availH-dy*scale)/2,
		width:  o.Width,
		height: o.Height,
	}
}

func (v viewport) pixel(p orb.Point) (float32, float32) {
	x := v.offX + (p[0]-v.bound.Min[0])*v.scale
	y := float64(v.height) - v.offY - (p[1]-v.bound.Min[1])*v.scale
	return float32(x), float32(y)
}

// Features draws fc: polygons filled and outlined, lines stroked and
// points as filled discs. Features are drawn in collection order.
func Features(fc *geo.FeatureCollection, opts Options) (*image.RGBA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	vp := newViewport(fc.Bound(), opts)
	c := &canvas{img: img, vp: vp, opts: opts, z: vector.NewRasterizer(opts.Width, opts.Height)}
	drawn := 0
	for _, f := range fc.Features {
		if geo.IsEmpty(f.Geometry) {
			continue
		}
		c.geometry(f.Geometry)
		drawn++
	}
	opts.logger().Debug().
		Int("features", drawn).
		Float64("scale", vp.scale).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Msg("Rendered features")
	return img, nil
}

type canvas struct {
	img  *image.RGBA
	vp   viewport
	opts Options
	z    *vector.Rasterizer
}

func (c *canvas) paint(col color.RGBA) {
	c.z.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
	c.z.Reset(c.opts.Width, c.opts.Height)
}

func (c *canvas) geometry(g orb.Geometry) {
	switch g := g.(type) {
	case orb.Point:
		c.points(orb.MultiPoint{g})
	case orb.MultiPoint:
		c.points(g)
	case orb.LineString:
		c.lines(orb.MultiLineString{g})
	case orb.MultiLineString:
		c.lines(g)
	case orb.Ring:
		c.polygons(orb.MultiPolygon{{g}})
	case orb.Polygon:
		c.polygons(orb.MultiPolygon{g})
	case orb.MultiPolygon:
		c.polygons(g)
	case orb.Bound:
		c.polygons(orb.MultiPolygon{g.ToPolygon()})
	case orb.Collection:
		for _, part := range g {
			c.geometry(part)
		}
	}
}

// ring adds r to the path with the given orientation. The rasterizer
// accumulates signed coverage, so holes must wind against their shell.
func (c *canvas) ring(r orb.Ring, want orb.Orientation) {
	if len(r) < 3 {
		return
	}
	pts := r
	if r.Orientation() != want {
		pts = make(orb.Ring, len(r))
		for i, p := range r {
			pts[len(r)-1-i] = p
		}
	}
	x, y := c.vp.pixel(pts[0])
	c.z.MoveTo(x, y)
	for _, p := range pts[1:] {
		x, y = c.vp.pixel(p)
		c.z.LineTo(x, y)
	}
	c.z.ClosePath()
}

func (c *canvas) polygons(mp orb.MultiPolygon) {
	for _, poly := range mp {
		for i, r := range poly {
			if i == 0 {
				c.ring(r, orb.CCW)
			} else {
				c.ring(r, orb.CW)
			}
		}
	}
	c.paint(c.opts.Fill)

	if c.opts.StrokeWidth <= 0 {
		return
	}
	for _, poly := range mp {
		for _, r := range poly {
			c.stroke(orb.LineString(r))
		}
	}
	c.paint(c.opts.Stroke)
}

func (c *canvas) lines(mls orb.MultiLineString) {
	if c.opts.StrokeWidth <= 0 {
		return
	}
	for _, ls := range mls {
		c.stroke(ls)
	}
	c.paint(c.opts.Stroke)
}

// stroke adds one quad per segment plus a disc at each vertex for round
// joins. All shapes wind the same way so overlaps stay opaque.
func (c *canvas) stroke(ls orb.LineString) {
	half := float32(c.opts.StrokeWidth / 2)
	for i := 0; i+1 < len(ls); i++ {
		ax, ay := c.vp.pixel(ls[i])
		bx, by := c.vp.pixel(ls[i+1])
		dx, dy := bx-ax, by-ay
		l := float32(math.Hypot(float64(dx), float64(dy)))
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		c.z.MoveTo(ax+nx, ay+ny)
		c.z.LineTo(bx+nx, by+ny)
		c.z.LineTo(bx-nx, by-ny)
		c.z.LineTo(ax-nx, ay-ny)
		c.z.ClosePath()
	}
	for _, p := range ls {
		x, y := c.vp.pixel(p)
		c.disc(x, y, float64(half))
	}
}

func (c *canvas) disc(x, y float32, radius float64) {
	const sides = 24
	if radius <= 0 {
		return
	}
	for i := 0; i <= sides; i++ {
		a := 2 * math.Pi * float64(i) / sides
		px := x + float32(radius*math.Cos(a))
		py := y - float32(radius*math.Sin(a))
		if i == 0 {
			c.z.MoveTo(px, py)
		} else {
			c.z.LineTo(px, py)
		}
	}
	c.z.ClosePath()
}

func (c *canvas) points(mp orb.MultiPoint) {
	for _, p := range mp {
		x, y := c.vp.pixel(p)
		c.disc(x, y, c.opts.PointRadius)
	}
	c.paint(c.opts.Fill)
}

// Raster draws one band of r coloured through the palette, stretched
// between the band's smallest and largest valid values. Nodata cells stay
// transparent so the background shows through. The grid is scaled to the
// padded output with nearest-neighbour sampling, keeping its aspect ratio.
func Raster(r *raster.Raster, band int, opts Options) (*image.RGBA, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if band < 0 || band >= r.Bands() {
		return nil, fmt.Errorf("render: band %d out of range [0,%d)", band, r.Bands())
	}
	if len(opts.Palette) < 2 {
		return nil, fmt.Errorf("render: palette needs at least 2 colours, got %d", len(opts.Palette))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range r.Band(band) {
		if r.IsNoData(v) || math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	src := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	for row := 0; row < r.Height(); row++ {
		for col := 0; col < r.Width(); col++ {
			v := r.At(band, col, row)
			if r.IsNoData(v) || math.IsNaN(v) {
				continue
			}
			t := 0.0
			if hi > lo {
				t = (v - lo) / (hi - lo)
			}
			src.SetRGBA(col, row, ramp(opts.Palette, t))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)

	ext := r.Extent()
	vp := newViewport(ext, opts)
	x0, y0 := vp.pixel(orb.Point{ext.Min[0], ext.Max[1]})
	x1, y1 := vp.pixel(orb.Point{ext.Max[0], ext.Min[1]})
	target := image.Rect(
		int(math.Round(float64(x0))), int(math.Round(float64(y0))),
		int(math.Round(float64(x1))), int(math.Round(float64(y1))),
	)
	xdraw.NearestNeighbor.Scale(dst, target, src, src.Bounds(), draw.Over, nil)

	opts.logger().Debug().
		Int("band", band).
		Float64("min", lo).
		Float64("max", hi).
		Str("target", target.String()).
		Msg("Rendered raster")
	return dst, nil
}

// ramp interpolates linearly between palette stops for t in [0,1].
func ramp(palette []color.RGBA, t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(palette)-1)
	i := int(pos)
	if i >= len(palette)-1 {
		return palette[len(palette)-1]
	}
	f := pos - float64(i)
	a, b := palette[i], palette[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
