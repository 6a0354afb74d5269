package crs

import (
	"encoding/json"
	"strconv"
	"strings"
)

// wktNode is one keyword[...] node of a WKT1 or WKT2 definition.
type wktNode struct {
	keyword  string
	values   []string // quoted strings and bare numbers, unparsed
	children []*wktNode
}

// parseWkt tokenizes a WKT definition into its node tree. It is tolerant:
// it only needs enough structure to find the root keyword, authority ids,
// units and axis declarations.
func parseWkt(s string) (*wktNode, bool) {
	p := &wktParser{input: s}
	node := p.parseNode()
	if node == nil || p.failed {
		return nil, false
	}
	return node, true
}

type wktParser struct {
	input  string
	pos    int
	failed bool
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\r', '\n', ',':
			p.pos++
		default:
			return
		}
	}
}

func (p *wktParser) parseNode() *wktNode {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isKeywordChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		p.failed = true
		return nil
	}
	node := &wktNode{keyword: strings.ToUpper(p.input[start:p.pos])}
	p.skipSpace()
	if p.pos >= len(p.input) || (p.input[p.pos] != '[' && p.input[p.pos] != '(') {
		p.failed = true
		return nil
	}
	open := p.input[p.pos]
	closeCh := byte(']')
	if open == '(' {
		closeCh = ')'
	}
	p.pos++
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			p.failed = true
			return nil
		}
		ch := p.input[p.pos]
		switch {
		case ch == closeCh:
			p.pos++
			return node
		case ch == '"':
			node.values = append(node.values, p.parseQuoted())
		case isKeywordChar(ch):
			// Either a nested node or a bare token (number, ENUM value).
			save := p.pos
			for p.pos < len(p.input) && isKeywordChar(p.input[p.pos]) {
				p.pos++
			}
			tok := p.input[save:p.pos]
			p.skipSpace()
			if p.pos < len(p.input) && (p.input[p.pos] == '[' || p.input[p.pos] == '(') {
				p.pos = save
				child := p.parseNode()
				if child == nil {
					return nil
				}
				node.children = append(node.children, child)
			} else {
				node.values = append(node.values, tok)
			}
		default:
			p.failed = true
			return nil
		}
	}
}

func (p *wktParser) parseQuoted() string {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == '"' {
			// WKT escapes a quote by doubling it.
			if p.pos+1 < len(p.input) && p.input[p.pos+1] == '"' {
				sb.WriteByte('"')
				p.pos += 2
				continue
			}
			p.pos++
			return sb.String()
		}
		sb.WriteByte(ch)
		p.pos++
	}
	p.failed = true
	return sb.String()
}

func isKeywordChar(ch byte) bool {
	switch {
	case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
		return true
	case ch == '_', ch == '.', ch == '-', ch == '+', ch == 'e', ch == 'E':
		return true
	}
	return false
}

func (n *wktNode) find(keywords ...string) *wktNode {
	for _, c := range n.children {
		for _, k := range keywords {
			if c.keyword == k {
				return c
			}
		}
	}
	return nil
}

func (n *wktNode) findAll(keywords ...string) []*wktNode {
	var out []*wktNode
	for _, c := range n.children {
		for _, k := range keywords {
			if c.keyword == k {
				out = append(out, c)
			}
		}
	}
	return out
}

// authorityCode extracts the EPSG code from an AUTHORITY["EPSG","4326"]
// (WKT1) or ID["EPSG",4326] (WKT2) node directly under n.
func (n *wktNode) authorityCode() int {
	auth := n.find("AUTHORITY", "ID")
	if auth == nil || len(auth.values) < 2 {
		return 0
	}
	if !strings.EqualFold(auth.values[0], "EPSG") {
		return 0
	}
	code, err := strconv.Atoi(strings.TrimSpace(auth.values[1]))
	if err != nil {
		return 0
	}
	return code
}

// crsFromWkt builds a Crs from a WKT1 or WKT2 definition.
func crsFromWkt(wkt string) (*Crs, bool) {
	root, ok := parseWkt(wkt)
	if !ok {
		return nil, false
	}

	c := &Crs{wkt: wkt, policy: TraditionalGis, linearUnits: meterUnit, angularUnits: degUnit}
	switch root.keyword {
	case "GEOGCS", "GEOGCRS", "GEOGRAPHICCRS", "GEODCRS", "GEODETICCRS":
		c.kind = KindGeographic
	case "PROJCS", "PROJCRS", "PROJECTEDCRS":
		c.kind = KindProjected
	case "LOCAL_CS", "ENGCRS", "ENGINEERINGCRS":
		c.kind = KindLocal
	case "COMPD_CS", "COMPOUNDCRS":
		// Take the horizontal member.
		for _, child := range root.children {
			if sub, ok := crsFromWkt(renderNode(child)); ok && sub.kind != KindUnknown {
				sub.wkt = wkt
				return sub, true
			}
		}
		return nil, false
	default:
		return nil, false
	}

	if len(root.values) > 0 {
		c.name = root.values[0]
	}
	c.epsgCode = root.authorityCode()

	if unit := findUnit(root, c.kind); unit != nil {
		if c.kind == KindGeographic {
			c.angularUnits = *unit
		} else {
			c.linearUnits = *unit
		}
	}

	c.authorityLatLong = wktDeclaresLatLong(root, c.kind)

	// Registry metadata wins for known codes; it carries curated axis order
	// and units.
	if e, ok := lookupRegistry(c.epsgCode); ok {
		c.kind = e.kind
		c.name = e.name
		c.authorityLatLong = e.latLong
		if e.kind == KindGeographic {
			c.angularUnits = e.unit
		} else {
			c.linearUnits = e.unit
		}
	}
	return c, true
}

// findUnit locates the coordinate-system unit: WKT1 UNIT directly under the
// root (the last one for PROJCS), WKT2 LENGTHUNIT/ANGLEUNIT under CS/AXIS.
func findUnit(root *wktNode, kind Kind) *Units {
	unitFrom := func(n *wktNode) *Units {
		if n == nil || len(n.values) < 2 {
			return nil
		}
		factor, err := strconv.ParseFloat(n.values[1], 64)
		if err != nil || factor <= 0 {
			return nil
		}
		return &Units{Name: n.values[0], ToSI: factor}
	}

	units := root.findAll("UNIT", "LENGTHUNIT", "ANGLEUNIT")
	if len(units) > 0 {
		return unitFrom(units[len(units)-1])
	}
	if cs := root.find("CS"); cs != nil {
		if u := unitFrom(cs.find("UNIT", "LENGTHUNIT", "ANGLEUNIT")); u != nil {
			return u
		}
	}
	for _, axis := range root.findAll("AXIS") {
		if u := unitFrom(axis.find("UNIT", "LENGTHUNIT", "ANGLEUNIT")); u != nil {
			return u
		}
	}
	return nil
}

// wktDeclaresLatLong inspects AXIS nodes for an explicit Lat/Long or
// Northing/Easting first axis. Without AXIS nodes, EPSG geographic CRSes
// default to Lat/Long per the authority.
func wktDeclaresLatLong(root *wktNode, kind Kind) bool {
	axes := root.findAll("AXIS")
	if cs := root.find("CS"); cs != nil && len(axes) == 0 {
		axes = cs.findAll("AXIS")
	}
	if len(axes) > 0 {
		first := axes[0]
		if len(first.values) > 0 {
			name := strings.ToLower(first.values[0])
			if strings.Contains(name, "lat") || strings.Contains(name, "north") {
				return true
			}
			return false
		}
	}
	return kind == KindGeographic && root.authorityCode() > 0
}

func renderNode(n *wktNode) string {
	var sb strings.Builder
	sb.WriteString(n.keyword)
	sb.WriteByte('[')
	first := true
	for _, v := range n.values {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			sb.WriteString(v)
		} else {
			sb.WriteByte('"')
			sb.WriteString(v)
			sb.WriteByte('"')
		}
	}
	for _, c := range n.children {
		if !first {
			sb.WriteByte(',')
		}
		first = false
		sb.WriteString(renderNode(c))
	}
	sb.WriteByte(']')
	return sb.String()
}

// crsFromProjJson builds a Crs from a PROJJSON document, honoring the
// id.authority/id.code pair when present.
func crsFromProjJson(doc string) (*Crs, bool) {
	var pj struct {
		Type string `json:"type"`
		Name string `json:"name"`
		ID   struct {
			Authority string      `json:"authority"`
			Code      json.Number `json:"code"`
		} `json:"id"`
	}
	if err := json.Unmarshal([]byte(doc), &pj); err != nil {
		return nil, false
	}
	c := &Crs{wkt: doc, name: pj.Name, policy: TraditionalGis, linearUnits: meterUnit, angularUnits: degUnit}
	switch {
	case strings.Contains(pj.Type, "Geographic"):
		c.kind = KindGeographic
	case strings.Contains(pj.Type, "Projected"):
		c.kind = KindProjected
	case strings.Contains(pj.Type, "Engineering"):
		c.kind = KindLocal
	default:
		return nil, false
	}
	if strings.EqualFold(pj.ID.Authority, "EPSG") {
		if code, err := strconv.Atoi(pj.ID.Code.String()); err == nil {
			c.epsgCode = code
		}
	}
	if e, ok := lookupRegistry(c.epsgCode); ok {
		c.kind = e.kind
		c.name = e.name
		c.authorityLatLong = e.latLong
		if e.kind == KindGeographic {
			c.angularUnits = e.unit
		} else {
			c.linearUnits = e.unit
		}
	} else if c.kind == KindGeographic && c.epsgCode > 0 {
		c.authorityLatLong = true
	}
	return c, true
}
