package udco2s

import (
	"fmt"
	"regexp"
	"strings"
)

// CO2=1230,HUM=56.5,TMP=20.0
var lineRegex = regexp.MustCompile(`^CO2=(\d+),HUM=(\d+\.\d+),TMP=(\d+\.\d+)`)

// Reading is one sample reported by the sensor. Values are kept exactly as the
// device sent them.
type Reading struct {
	CO2         string
	Humidity    string
	Temperature string
}

// Match extracts a Reading from the start of line. Anything after the
// temperature field is ignored.
func Match(line string) (Reading, bool) {
	m := lineRegex.FindStringSubmatch(line)
	if m == nil {
		return Reading{}, false
	}
	return Reading{CO2: m[1], Humidity: m[2], Temperature: m[3]}, true
}

type Format int

const (
	FormatKV Format = iota
	FormatJSON
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "kv":
		return FormatKV, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatKV, fmt.Errorf("unknown output format %q (expected json or kv)", s)
}

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "kv"
}

// Format renders the reading without a trailing newline.
//
//	FormatJSON => {"CO2":637,"HUM":56.5,"TMP":29.7}
//	FormatKV   => CO2=637,HUM=56.5,TMP=29.7
func (r Reading) Format(f Format) string {
	if f == FormatJSON {
		return fmt.Sprintf(`{"CO2":%s,"HUM":%s,"TMP":%s}`, r.CO2, r.Humidity, r.Temperature)
	}
	return fmt.Sprintf("CO2=%s,HUM=%s,TMP=%s", r.CO2, r.Humidity, r.Temperature)
}
