// Package values parses engineering-notation numeric literals such as
// "1k", "10u", "4.7meg" into float64.
package values

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"mnacore/pkg/simerr"
)

var unitMap = map[string]float64{
	"meg": 1e6,
	"k":   1e3,
	"m":   1e-3,
	"u":   1e-6,
	"n":   1e-9,
}

// meg must be tried before m, since "m" is a prefix of "meg".
var valueRe = regexp.MustCompile(`^([-+]?\d*\.?\d+(?:[eE][-+]?\d+)?)(meg|k|m|u|n)?$`)

// Parse converts a numeric literal with an optional engineering suffix
// (case-insensitive) into a float64.
func Parse(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, simerr.New(simerr.InvalidValue, "empty value")
	}

	matches := valueRe.FindStringSubmatch(strings.ToLower(tok))
	if matches == nil {
		return 0, simerr.New(simerr.InvalidValue, "unparseable value: "+tok)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, simerr.Wrap(simerr.InvalidValue, "unparseable numeric prefix: "+tok, err)
	}

	if suffix := matches[2]; suffix != "" {
		mult, ok := unitMap[suffix]
		if !ok {
			return 0, simerr.New(simerr.InvalidValue, "unknown suffix in: "+tok)
		}
		// Sub-unit suffixes divide by the exact power of ten, so "10u"
		// yields the same float64 as the literal 10e-6.
		if mult < 1 {
			num /= math.Round(1 / mult)
		} else {
			num *= mult
		}
	}

	return num, nil
}

// CanonicalSuffix returns the suffix string (e.g. "k", "meg") for the
// given magnitude, or "" if no suffix applies, matching the set Parse
// recognizes. Used by the round-trip property test.
func CanonicalSuffix(v float64) string {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1e6:
		return "meg"
	case abs >= 1e3:
		return "k"
	case abs > 0 && abs < 1e-6:
		return "n"
	case abs > 0 && abs < 1e-3:
		return "u"
	case abs > 0 && abs < 1:
		return "m"
	default:
		return ""
	}
}
