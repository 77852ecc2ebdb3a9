// Package render draws feature collections and raster bands to images.
//
// Drawing is configured per call through Options; start from
// DefaultOptions and override what you need:
//
//	opts := render.DefaultOptions()
//	opts.Width, opts.Height = 1024, 1024
//	img, err := render.Features(basins, opts)
//	if err != nil {
//	    return err
//	}
//	return render.WritePNG(out, img)
package render
