package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/predicate"
	"github.com/beetlebugorg/geokit/pkg/raster"
	"github.com/beetlebugorg/geokit/pkg/render"
	"github.com/beetlebugorg/geokit/pkg/service"
	"github.com/beetlebugorg/geokit/pkg/table"
	"github.com/beetlebugorg/geokit/pkg/transform"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/beetlebugorg/geokit/pkg/zonal"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

func isRaster(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return true
	}
	return false
}

func (a *app) loadVector(path string) (*geo.FeatureCollection, error) {
	fc, err := vector.Load(path, vector.LoadOptions{Logger: &log.Logger})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Int("features", fc.Len()).Msg("Loaded features")
	return fc, nil
}

func (a *app) saveVector(fc *geo.FeatureCollection, path string) error {
	format, err := vector.FormatOf(path)
	if err != nil {
		return err
	}
	if err := vector.Save(fc, path, format); err != nil {
		return err
	}
	log.Info().Str("path", path).Str("format", format.String()).Int("features", fc.Len()).Msg("Saved features")
	return nil
}

func (a *app) loadRaster(path string) (*raster.Raster, error) {
	return a.cache.Get(path, func() (*raster.Raster, error) {
		return raster.Load(path)
	})
}

func (a *app) saveRaster(r *raster.Raster, path string) error {
	if err := raster.Save(r, path, raster.SaveOptions{Compress: a.cfg.Raster.Compress}); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("width", r.Width()).Int("height", r.Height()).Msg("Saved raster")
	return nil
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, errors.Wrapf(err, "bbox %q", s)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, errors.Errorf("bbox %q: min exceeds max", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, errors.Wrapf(err, "time %q: want YYYY-MM-DD or RFC 3339", s)
}

type infoCommand struct {
	app  *app
	Args struct {
		File string `positional-arg-name:"file"`
	} `positional-args:"yes" required:"yes"`
}

func (c *infoCommand) Execute([]string) error {
	if isRaster(c.Args.File) {
		return c.raster()
	}
	fc, err := c.app.loadVector(c.Args.File)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "file:\t%s\n", c.Args.File)
	fmt.Fprintf(w, "crs:\t%s\n", fc.CRS)
	fmt.Fprintf(w, "features:\t%d\n", fc.Len())
	if fc.Len() > 0 {
		b := fc.Bound()
		fmt.Fprintf(w, "extent:\t%g %g %g %g\n", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	}
	var types []string
	for _, t := range fc.GeometryTypes() {
		types = append(types, t.String())
	}
	fmt.Fprintf(w, "geometry types:\t%s\n", strings.Join(types, ", "))
	cols := table.NewSpatialTable(fc).Drop().Columns()
	fmt.Fprintf(w, "columns:\t%s\n", strings.Join(cols, ", "))
	if fc.Len() > 0 && !geo.IsEmpty(fc.Features[0].Geometry) {
		s := wkt.MarshalString(fc.Features[0].Geometry)
		if len(s) > 120 {
			s = s[:117] + "..."
		}
		fmt.Fprintf(w, "first:\t%s\n", s)
	}
	return w.Flush()
}

func (c *infoCommand) raster() error {
	ds, err := raster.Open(c.Args.File)
	if err != nil {
		return err
	}
	defer ds.Close()

	gt := ds.GeoTransform()
	w := tabwriter.NewWriter(c.app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "file:\t%s\n", c.Args.File)
	fmt.Fprintf(w, "crs:\t%s\n", ds.CRS())
	fmt.Fprintf(w, "size:\t%dx%d\n", ds.Width(), ds.Height())
	fmt.Fprintf(w, "bands:\t%d\n", ds.Bands())
	fmt.Fprintf(w, "origin:\t%g %g\n", gt[0], gt[3])
	fmt.Fprintf(w, "pixel size:\t%g %g\n", gt.PixelWidth(), gt.PixelHeight())
	fmt.Fprintf(w, "nodata:\t%g\n", ds.NoData())
	fmt.Fprintf(w, "tiles:\t%d of %d px\n", len(ds.Tiles(c.app.cfg.Raster.TileSize)), c.app.cfg.Raster.TileSize)
	return w.Flush()
}

type ioArgs struct {
	In  string `positional-arg-name:"in"`
	Out string `positional-arg-name:"out"`
}

type reprojectCommand struct {
	app    *app
	Target string `short:"t" long:"target" required:"yes" description:"Target CRS (EPSG:code, PROJ string or WKT)"`
	Args   ioArgs `positional-args:"yes" required:"yes"`
}

func (c *reprojectCommand) Execute([]string) error {
	target, err := geo.ParseCRS(c.Target)
	if err != nil {
		return err
	}
	fc, err := c.app.loadVector(c.Args.In)
	if err != nil {
		return err
	}
	out, err := transform.Reproject(fc, target)
	if err != nil {
		return err
	}
	return c.app.saveVector(out, c.Args.Out)
}

type bufferCommand struct {
	app      *app
	Distance float64 `short:"d" long:"distance" required:"yes" description:"Buffer distance in the CRS unit; negative erodes polygons"`
	Segments int     `long:"quad-segs" default:"8" description:"Segments per quarter circle"`
	Args     ioArgs  `positional-args:"yes" required:"yes"`
}

func (c *bufferCommand) Execute([]string) error {
	fc, err := c.app.loadVector(c.Args.In)
	if err != nil {
		return err
	}
	out := geo.NewFeatureCollection(fc.CRS)
	opts := transform.BufferOptions{QuadrantSegments: c.Segments}
	for _, f := range fc.Features {
		bf, err := transform.BufferFeature(f, c.Distance, opts)
		if err != nil {
			return errors.Wrapf(err, "feature %s", f.ID)
		}
		if err := out.Add(bf); err != nil {
			return err
		}
	}
	return c.app.saveVector(out, c.Args.Out)
}

type simplifyCommand struct {
	app       *app
	Tolerance float64 `short:"t" long:"tolerance" required:"yes" description:"Maximum deviation in the CRS unit"`
	Args      ioArgs  `positional-args:"yes" required:"yes"`
}

func (c *simplifyCommand) Execute([]string) error {
	fc, err := c.app.loadVector(c.Args.In)
	if err != nil {
		return err
	}
	out, err := transform.SimplifyCollection(fc, c.Tolerance)
	if err != nil {
		return err
	}
	return c.app.saveVector(out, c.Args.Out)
}

type relateCommand struct {
	app       *app
	Predicate string  `short:"p" long:"predicate" description:"Also evaluate a named predicate"`
	Param     float64 `long:"param" description:"Parameter for equals_exact and is_within_distance"`
	Args      struct {
		A string `positional-arg-name:"a"`
		B string `positional-arg-name:"b"`
	} `positional-args:"yes" required:"yes"`
}

func (c *relateCommand) Execute([]string) error {
	fa, err := c.app.loadVector(c.Args.A)
	if err != nil {
		return err
	}
	fb, err := c.app.loadVector(c.Args.B)
	if err != nil {
		return err
	}

	var params []float64
	if c.Param != 0 {
		params = append(params, c.Param)
	}

	w := tabwriter.NewWriter(c.app.out, 0, 4, 2, ' ', 0)
	header := "a\tb\tmatrix"
	if c.Predicate != "" {
		header += "\t" + c.Predicate
	}
	fmt.Fprintln(w, header)
	for _, a := range fa.Features {
		for _, b := range fb.Features {
			// EvaluateFeatures also checks that both sides share a CRS.
			name := c.Predicate
			if name == "" {
				name = "intersects"
			}
			ok, err := predicate.EvaluateFeatures(name, a, b, params...)
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%s\t%s\t%s", a.ID, b.ID, predicate.Relate(a.Geometry, b.Geometry))
			if c.Predicate != "" {
				line += fmt.Sprintf("\t%t", ok)
			}
			fmt.Fprintln(w, line)
		}
	}
	return w.Flush()
}

type cropCommand struct {
	app  *app
	BBox string `short:"b" long:"bbox" required:"yes" description:"minx,miny,maxx,maxy in the raster CRS"`
	Args ioArgs `positional-args:"yes" required:"yes"`
}

func (c *cropCommand) Execute([]string) error {
	bbox, err := parseBBox(c.BBox)
	if err != nil {
		return err
	}
	r, err := c.app.loadRaster(c.Args.In)
	if err != nil {
		return err
	}
	out, err := raster.Crop(r, bbox)
	if err != nil {
		return err
	}
	return c.app.saveRaster(out, c.Args.Out)
}

type zonalCommand struct {
	app        *app
	Stat       string `short:"s" long:"stat" default:"mean" description:"mean, sum, min, max, count, majority or all"`
	Band       int    `long:"band" description:"Raster band, from 0"`
	AllTouched bool   `long:"all-touched" description:"Count every cell a zone touches"`
	Args       struct {
		Raster string `positional-arg-name:"raster"`
		Zones  string `positional-arg-name:"zones"`
	} `positional-args:"yes" required:"yes"`
}

func (c *zonalCommand) Execute([]string) error {
	stats := []zonal.Statistic{zonal.Count, zonal.Sum, zonal.Mean, zonal.Min, zonal.Max, zonal.Majority}
	if c.Stat != "all" {
		s, err := zonal.ParseStatistic(c.Stat)
		if err != nil {
			return err
		}
		stats = []zonal.Statistic{s}
	}

	r, err := c.app.loadRaster(c.Args.Raster)
	if err != nil {
		return err
	}
	zones, err := c.app.loadVector(c.Args.Zones)
	if err != nil {
		return err
	}

	opts := c.app.cfg.ZonalOptions()
	opts.Band = c.Band
	opts.AllTouched = opts.AllTouched || c.AllTouched
	opts.Logger = &log.Logger
	summaries, err := zonal.Summarize(r, zones, opts)
	if err != nil {
		return err
	}

	cols := []string{"zone"}
	for _, s := range stats {
		cols = append(cols, s.String())
	}
	tbl := table.NewPlainTable(cols...)
	for _, z := range summaries {
		row := []any{z.ID}
		for _, s := range stats {
			row = append(row, z.Value(s))
		}
		if err := tbl.AppendRow(row...); err != nil {
			return err
		}
	}
	return printTable(c.app, tbl)
}

func printTable(a *app, t table.Table) error {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	cols := t.Columns()
	fmt.Fprintln(w, strings.Join(cols, "\t")+"\t")
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		for _, col := range cols {
			fmt.Fprintf(w, "%v\t", row.Get(col))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

type fetchCommand struct {
	app   *app
	BBox  string            `short:"b" long:"bbox" description:"minx,miny,maxx,maxy filter"`
	IDs   []string          `long:"id" description:"Record identifier, repeatable"`
	Start string            `long:"start" description:"Start date (YYYY-MM-DD or RFC 3339)"`
	End   string            `long:"end" description:"End date (YYYY-MM-DD or RFC 3339)"`
	Limit int               `long:"limit" description:"Maximum number of records"`
	Param map[string]string `short:"p" long:"param" description:"Extra query parameter as key:value, repeatable"`
	Post  bool              `long:"post" description:"Send parameters as a form POST"`
	Args  struct {
		URL string `positional-arg-name:"url"`
		Out string `positional-arg-name:"out"`
	} `positional-args:"yes" required:"yes"`
}

func (c *fetchCommand) query() (service.Query, error) {
	q := service.Query{IDs: c.IDs, Limit: c.Limit}
	var err error
	if c.BBox != "" {
		if q.BBox, err = parseBBox(c.BBox); err != nil {
			return q, err
		}
	}
	if q.Start, err = parseTime(c.Start); err != nil {
		return q, err
	}
	if q.End, err = parseTime(c.End); err != nil {
		return q, err
	}
	if len(c.Param) > 0 {
		q.Params = map[string][]string{}
		for k, v := range c.Param {
			q.Params.Set(k, v)
		}
	}
	if c.Post {
		q.Method = "POST"
	}
	return q, nil
}

func (c *fetchCommand) Execute([]string) error {
	q, err := c.query()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := service.NewClient(c.app.cfg.ServiceConfig(), service.WithLogger(log.Logger))
	if isRaster(c.Args.Out) {
		r, err := client.FetchRaster(ctx, c.Args.URL, q, service.Expect{})
		if err != nil {
			return err
		}
		return c.app.saveRaster(r, c.Args.Out)
	}
	fc, err := client.FetchFeatures(ctx, c.Args.URL, q, service.Expect{})
	if err != nil {
		return err
	}
	return c.app.saveVector(fc, c.Args.Out)
}

type renderCommand struct {
	app    *app
	Band   int    `long:"band" description:"Raster band to draw, from 0"`
	Width  int    `short:"W" long:"width" description:"Output width in pixels"`
	Height int    `short:"H" long:"height" description:"Output height in pixels"`
	Args   ioArgs `positional-args:"yes" required:"yes"`
}

func (c *renderCommand) Execute([]string) error {
	opts, err := c.app.cfg.RenderOptions()
	if err != nil {
		return err
	}
	if c.Width > 0 {
		opts.Width = c.Width
	}
	if c.Height > 0 {
		opts.Height = c.Height
	}
	opts.Logger = &log.Logger

	if isRaster(c.Args.In) {
		r, err := c.app.loadRaster(c.Args.In)
		if err != nil {
			return err
		}
		out, err := render.Raster(r, c.Band, opts)
		if err != nil {
			return err
		}
		return writePNG(c.Args.Out, out)
	}
	fc, err := c.app.loadVector(c.Args.In)
	if err != nil {
		return err
	}
	out, err := render.Features(fc, opts)
	if err != nil {
		return err
	}
	return writePNG(c.Args.Out, out)
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := render.WritePNG(f, img); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	log.Info().Str("path", path).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("Rendered")
	return nil
}
