package badge

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/GeekMasher/advanced-security-compliance/internal/model"
	"github.com/GeekMasher/advanced-security-compliance/internal/safefile"
)

// DefaultLabel is the left-hand badge text.
const DefaultLabel = "compliance"

type Style string

const (
	StyleFlat       Style = "flat"
	StyleFlatSquare Style = "flat-square"
)

// ParseStyle parses a style string, defaulting to flat.
func ParseStyle(s string) Style {
	if strings.EqualFold(strings.TrimSpace(s), string(StyleFlatSquare)) {
		return StyleFlatSquare
	}
	return StyleFlat
}

var hexForColor = map[string]string{
	"brightgreen": "#4c1",
	"yellow":      "#dfb317",
	"red":         "#e05d44",
	"lightgrey":   "#9f9f9f",
}

// RenderSVG generates a self-contained SVG badge.
func RenderSVG(label, message, color string, style Style) string {
	hex, ok := hexForColor[color]
	if !ok {
		hex = hexForColor["lightgrey"]
	}

	labelWidth := float64(len(label))*6.5 + 10
	messageWidth := float64(len(message))*7.0 + 10
	totalWidth := labelWidth + messageWidth

	rx := 3
	if style == StyleFlatSquare {
		rx = 0
	}

	label = html.EscapeString(label)
	message = html.EscapeString(message)

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="20" role="img" aria-label="%s: %s">
  <linearGradient id="b" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="a">
    <rect width="%.0f" height="20" rx="%d" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#a)">
    <path fill="#555" d="M0 0h%.0fv20H0z"/>
    <path fill="%s" d="M%.0f 0h%.0fv20H%.0fz"/>
    <path fill="url(#b)" d="M0 0h%.0fv20H0z"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="%.1f" y="15" fill="#010101" fill-opacity=".3">%s</text>
    <text x="%.1f" y="14">%s</text>
    <text x="%.1f" y="15" fill="#010101" fill-opacity=".3">%s</text>
    <text x="%.1f" y="14">%s</text>
  </g>
</svg>`,
		totalWidth, label, message,
		totalWidth, rx,
		labelWidth,
		hex, labelWidth, messageWidth, labelWidth,
		totalWidth,
		labelWidth/2, label,
		labelWidth/2, label,
		labelWidth+messageWidth/2, message,
		labelWidth+messageWidth/2, message,
	)
}

// Write renders the report badge to path: SVG for .svg files, a
// shields.io endpoint document otherwise.
func Write(path string, report model.Report, style Style) error {
	message, color := Status(report)
	var content string
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		content = RenderSVG(DefaultLabel, message, color, style)
	} else {
		content = ShieldsJSON(DefaultLabel, message, color)
	}
	if err := safefile.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write badge: %w", err)
	}
	return nil
}
