package service

import (
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/paulmach/orb"
)

// Query holds the request parameters common to feature and coverage
// services.
type Query struct {
	// BBox limits results to an extent, sent as bbox=minx,miny,maxx,maxy.
	BBox orb.Bound

	// IDs selects records by identifier, sent comma-separated.
	IDs []string

	// Start and End bound a date range, sent as startDT and endDT.
	Start time.Time
	End   time.Time

	// Limit caps the number of records. Zero sends no limit.
	Limit int

	// Params are extra parameters sent as given.
	Params url.Values

	// Method is GET or POST. POST sends the parameters form-encoded.
	Method string
}

type idList []string

// wireQuery is the encoded form of Query.
type wireQuery struct {
	BBox  orb.Bound `schema:"bbox,omitempty"`
	IDs   idList    `schema:"ids,omitempty"`
	Start time.Time `schema:"startDT,omitempty"`
	End   time.Time `schema:"endDT,omitempty"`
	Limit int       `schema:"limit,omitempty"`
}

var encoder = newEncoder()

func newEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	enc.RegisterEncoder(orb.Bound{}, func(v reflect.Value) string {
		b := v.Interface().(orb.Bound)
		parts := []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
		s := make([]string, len(parts))
		for i, p := range parts {
			s[i] = strconv.FormatFloat(p, 'f', -1, 64)
		}
		return strings.Join(s, ",")
	})
	enc.RegisterEncoder(idList{}, func(v reflect.Value) string {
		return strings.Join(v.Interface().(idList), ",")
	})
	enc.RegisterEncoder(time.Time{}, func(v reflect.Value) string {
		t := v.Interface().(time.Time)
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.UTC().Format(time.RFC3339)
	})
	return enc
}

// Values encodes q as URL parameters.
func (q Query) Values() (url.Values, error) {
	vals := url.Values{}
	w := wireQuery{BBox: q.BBox, IDs: q.IDs, Start: q.Start, End: q.End, Limit: q.Limit}
	if err := encoder.Encode(w, vals); err != nil {
		return nil, err
	}
	for k, vs := range q.Params {
		vals[k] = append(vals[k], vs...)
	}
	return vals, nil
}
