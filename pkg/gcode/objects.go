package gcode

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// objectValueLexer tokenizes CENTER and POLYGON values of
// EXCLUDE_OBJECT_DEFINE, e.g. CENTER=12.5,40 POLYGON=[[1,2],[3,4.5]]
var objectValueLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`},
	{Name: "Punct", Pattern: `[\[\],]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// pointValue is a single "x,y" pair
type pointValue struct {
	X float64 `@Number ","`
	Y float64 `@Number`
}

// polygonValue is a bracketed list of bracketed points
type polygonValue struct {
	Points []*pointValue `"[" ( "[" @@ "]" ( "," "[" @@ "]" )* )? "]"`
}

var (
	centerParser = participle.MustBuild[pointValue](
		participle.Lexer(objectValueLexer),
		participle.Elide("Whitespace"),
	)
	polygonParser = participle.MustBuild[polygonValue](
		participle.Lexer(objectValueLexer),
		participle.Elide("Whitespace"),
	)
)

// ParseCenter parses an EXCLUDE_OBJECT_DEFINE CENTER value ("x,y")
func ParseCenter(value string) (Vec2, error) {
	pt, err := centerParser.ParseString("", value)
	if err != nil {
		return Vec2{}, fmt.Errorf("parse error: %w", err)
	}
	return Vec2{X: pt.X, Y: pt.Y}, nil
}

// ParsePolygon parses an EXCLUDE_OBJECT_DEFINE POLYGON value
// ("[[x,y],[x,y],...]")
func ParsePolygon(value string) ([]Vec2, error) {
	poly, err := polygonParser.ParseString("", value)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	points := make([]Vec2, 0, len(poly.Points))
	for _, p := range poly.Points {
		points = append(points, Vec2{X: p.X, Y: p.Y})
	}
	return points, nil
}

// handleExcludeObject processes EXCLUDE_OBJECT_DEFINE/START/END. Unknown
// variants and malformed values are ignored.
func (p *Parser) handleExcludeObject(cmd string, line string) {
	switch cmd {
	case "EXCLUDE_OBJECT_DEFINE":
		name, ok := stringParam(line, "NAME")
		if !ok || name == "" {
			return
		}
		if _, exists := p.objects[name]; exists {
			return
		}

		obj := &Object{Name: name, Bounds: NewAABB()}
		if v, ok := stringParam(line, "CENTER"); ok {
			if c, err := ParseCenter(v); err == nil {
				obj.Center = c
			} else {
				p.logger.Debug("[Parser] Failed to parse CENTER", "object", name, "error", err)
			}
		}
		if v, ok := stringParam(line, "POLYGON"); ok {
			if poly, err := ParsePolygon(v); err == nil {
				obj.Polygon = poly
			} else {
				p.logger.Debug("[Parser] Failed to parse POLYGON", "object", name, "error", err)
			}
		}
		p.objects[name] = obj
		p.logger.Debug("[Parser] Defined object", "name", name, "x", obj.Center.X, "y", obj.Center.Y)

	case "EXCLUDE_OBJECT_START":
		name, ok := stringParam(line, "NAME")
		if !ok {
			p.currentObject = ""
			return
		}
		p.currentObject = name

	case "EXCLUDE_OBJECT_END":
		name, ok := stringParam(line, "NAME")
		if !ok || name == p.currentObject {
			p.currentObject = ""
		}
	}
}

// stringParam returns the value of KEY=value up to the next whitespace.
// Keys are matched case-insensitively as Klipper does.
func stringParam(line, key string) (string, bool) {
	for _, field := range strings.Fields(line) {
		k, v, found := strings.Cut(field, "=")
		if found && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
