package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/beetlebugorg/geokit/pkg/geo"
	"github.com/beetlebugorg/geokit/pkg/service"
	"github.com/beetlebugorg/geokit/pkg/vector"
	"github.com/paulmach/orb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := service.DefaultConfig()
	cfg.UserAgent = "geokit-example"
	cfg.MaxRetries = 5
	client := service.NewClient(cfg)

	// Gauges in a bounding box active over the last week
	q := service.Query{
		BBox:  orb.Bound{Min: orb.Point{-107, 34.5}, Max: orb.Point{-106, 35.5}},
		Start: time.Now().AddDate(0, 0, -7),
		Limit: 500,
	}
	want := service.Expect{
		Kind:          service.KindFeatures,
		GeometryTypes: []geo.GeometryType{geo.GeometryTypePoint},
	}

	res, err := client.Fetch(ctx, "https://waterservices.example.gov/sites", q, want)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Fetched %d features (%s) in %d attempt(s)\n",
		res.Features.Len(), res.ContentType, res.Attempts)

	if err := vector.Save(res.Features, "sites.gpkg", vector.FormatGeoPackage); err != nil {
		log.Fatal(err)
	}
}
