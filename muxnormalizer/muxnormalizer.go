// middleware for normalizing request paths and query parameters, so kiosk
// browsers and hand-typed admin URLs reach the registered routes.
//
// E.g. /API//Next_Video/?Q=gol will be normalized to /api/next_video?q=gol
package muxnormalizer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

type Normalizer struct {
	bySegmentCount map[int][]routeTemplate
}

type routeTemplate struct {
	staticPos map[int]string
}

// New builds a request normalizer from the routes registered on r.
func New(r *mux.Router) (*Normalizer, error) {
	n := &Normalizer{
		bySegmentCount: make(map[int][]routeTemplate),
	}

	// Build route casing index from all registered routes
	err := r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		template, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}

		staticPos := make(map[int]string)
		segIndex := 0
		for _, part := range strings.Split(template, "/") {
			if part == "" {
				continue
			}
			// path variables match anything
			if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
				segIndex++
				continue
			}
			staticPos[segIndex] = part
			segIndex++
		}
		n.bySegmentCount[segIndex] = append(n.bySegmentCount[segIndex], routeTemplate{staticPos: staticPos})
		return nil
	})
	return n, err
}

// Middleware returns an HTTP middleware that normalizes request paths and query parameters
func (n *Normalizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = n.normalizePath(cleanPath(r.URL.Path))
		if len(r.URL.RawQuery) > 0 {
			r.URL.RawQuery = normalizeQueryParameters(r.URL.RawQuery)
		}
		next.ServeHTTP(w, r)
	})
}

// cleanPath collapses duplicate slashes and drops a trailing slash.
func cleanPath(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

// normalizePath rewrites the casing of static segments to that of the first
// route template with the same number of segments that matches case-insensitively.
func (n *Normalizer) normalizePath(path string) string {
	segments := make([]string, 0, 4)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			segments = append(segments, p)
		}
	}

	for _, tpl := range n.bySegmentCount[len(segments)] {
		if len(tpl.staticPos) == 0 {
			continue
		}
		match := true
		modified := false
		newSegments := make([]string, len(segments))
		copy(newSegments, segments)

		for i, seg := range segments {
			canonical, ok := tpl.staticPos[i]
			if !ok {
				continue
			}
			if !strings.EqualFold(seg, canonical) {
				match = false
				break
			}
			if seg != canonical {
				newSegments[i] = canonical
				modified = true
			}
		}
		if !match {
			continue
		}
		if modified {
			path = "/" + strings.Join(newSegments, "/")
		}
		break
	}
	return path
}

// normalizeQueryParameters lowercases the names of the query parameters the API reads.
func normalizeQueryParameters(rawQuery string) string {
	queryparameters, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	newValues := url.Values{}
	for name, values := range queryparameters {
		if k := strings.ToLower(name); queryParameters[k] {
			name = k
		}
		for _, v := range values {
			newValues.Add(name, v)
		}
	}
	return newValues.Encode()
}

// These are the query parameters we lowercase
var queryParameters = map[string]bool{
	"q":    true,
	"full": true,
	"w":    true,
	"h":    true,
	"mw":   true,
	"mh":   true,
}
