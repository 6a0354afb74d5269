package crs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ResolveOptions mirror the backend knobs that affect what a definition
// string may legally reference. They are part of the cache key.
type ResolveOptions struct {
	AllowNetworkAccess bool
	AllowFileAccess    bool
}

type cacheKey struct {
	input string
	opts  ResolveOptions
}

var (
	cacheMu sync.RWMutex
	cache   = map[cacheKey]*Crs{}
	group   singleflight.Group
)

// ClearCache drops every cached resolution. Test fixtures use it to start
// from a cold cache.
func ClearCache() {
	cacheMu.Lock()
	cache = map[cacheKey]*Crs{}
	cacheMu.Unlock()
}

// Resolve parses an opaque CRS identifier: "EPSG:<n>", a bare code, CRS:84,
// an OGC URN, raw WKT, or PROJJSON. Resolution is idempotent and cached per
// process, keyed by the trimmed input plus options.
func Resolve(idOrDefinition string) (*Crs, error) {
	return ResolveWith(idOrDefinition, ResolveOptions{})
}

// ResolveWith is Resolve with explicit backend options.
func ResolveWith(idOrDefinition string, opts ResolveOptions) (*Crs, error) {
	input := strings.TrimSpace(idOrDefinition)
	if input == "" {
		return nil, errors.Wrap(ErrCrsUnknown, "empty CRS definition")
	}
	key := cacheKey{input: input, opts: opts}

	cacheMu.RLock()
	if c, ok := cache[key]; ok {
		cacheMu.RUnlock()
		return c, nil
	}
	cacheMu.RUnlock()

	v, err, _ := group.Do(fmt.Sprintf("%v|%s", opts, input), func() (interface{}, error) {
		c, err := resolveUncached(input)
		if err != nil {
			return nil, err
		}
		cacheMu.Lock()
		cache[key] = c
		cacheMu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Crs), nil
}

func resolveUncached(input string) (*Crs, error) {
	if code, ok := epsgCodeFromInput(input); ok {
		if c := crsFromEpsg(code); c != nil {
			return c, nil
		}
		return nil, errors.Wrapf(ErrCrsUnknown, "EPSG:%d not in registry", code)
	}

	switch {
	case strings.HasPrefix(input, "{"):
		if c, ok := crsFromProjJson(input); ok {
			return c, nil
		}
	default:
		if c, ok := crsFromWkt(input); ok {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrCrsUnknown, "unparseable CRS definition %q", truncate(input, 64))
}

// epsgCodeFromInput recognizes the code-bearing identifier spellings:
// "EPSG:4326", "epsg::4326", "4326", "CRS:84", "OGC:CRS84",
// "urn:ogc:def:crs:EPSG:6.9:4326" and "urn:ogc:def:crs:OGC:1.3:CRS84".
func epsgCodeFromInput(input string) (int, bool) {
	lower := strings.ToLower(input)

	if lower == "crs:84" || lower == "ogc:crs84" || lower == "crs84" {
		return crs84Code, true
	}
	if code, err := strconv.Atoi(input); err == nil && code > 0 {
		return code, true
	}
	if strings.HasPrefix(lower, "urn:ogc:def:crs:") {
		rest := input[len("urn:ogc:def:crs:"):]
		if strings.EqualFold(strings.TrimSuffix(rest, ":"), "OGC:1.3:CRS84") || strings.HasSuffix(strings.ToLower(rest), ":crs84") {
			return crs84Code, true
		}
		// The EPSG code is the last colon-separated integer.
		parts := strings.Split(rest, ":")
		for i := len(parts) - 1; i >= 0; i-- {
			if parts[i] == "" {
				continue
			}
			code, err := strconv.Atoi(parts[i])
			if err != nil {
				return 0, false
			}
			return code, code > 0
		}
		return 0, false
	}
	if strings.HasPrefix(lower, "epsg") {
		rest := strings.TrimLeft(input[4:], ": ")
		code, err := strconv.Atoi(rest)
		if err != nil || code <= 0 {
			return 0, false
		}
		return code, true
	}
	return 0, false
}

// crs84Code is the internal stand-in for OGC CRS:84, which shares the WGS84
// datum with EPSG:4326 but keeps longitude-first axis order.
const crs84Code = -84

func crsFromEpsg(code int) *Crs {
	if code == crs84Code {
		return &Crs{
			kind:             KindGeographic,
			epsgCode:         4326,
			name:             "WGS 84 (CRS84)",
			policy:           TraditionalGis,
			linearUnits:      meterUnit,
			angularUnits:     degUnit,
			authorityLatLong: false,
		}
	}
	e, ok := lookupRegistry(code)
	if !ok {
		// Unknown to the registry; still usable for identity and axis-order
		// defaults when the wgs84 repository knows the projection math.
		if coordinateSystemFor(code) == nil {
			return nil
		}
		// The 4xxx block holds the geographic 2D codes, declared Lat/Long
		// by the authority; everything else the repository knows is
		// projected.
		kind, latLong := KindProjected, false
		if code >= 4000 && code < 5000 {
			kind, latLong = KindGeographic, true
		}
		return &Crs{
			kind:             kind,
			epsgCode:         code,
			policy:           TraditionalGis,
			linearUnits:      meterUnit,
			angularUnits:     degUnit,
			authorityLatLong: latLong,
		}
	}
	c := &Crs{
		kind:             e.kind,
		epsgCode:         code,
		name:             e.name,
		policy:           TraditionalGis,
		linearUnits:      meterUnit,
		angularUnits:     degUnit,
		authorityLatLong: e.latLong,
	}
	if e.kind == KindGeographic {
		c.angularUnits = e.unit
	} else {
		c.linearUnits = e.unit
	}
	return c
}

// AuthorityID returns "EPSG:<n>" when the CRS carries an EPSG code, empty
// otherwise.
func AuthorityID(c *Crs) string {
	if c == nil || c.epsgCode <= 0 {
		return ""
	}
	return fmt.Sprintf("EPSG:%d", c.epsgCode)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
