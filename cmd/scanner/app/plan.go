package app

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
	"hz.tools/rf"

	"github.com/roman-kulish/radio-scanner/internal/demod"
	"github.com/roman-kulish/radio-scanner/internal/scanner"
)

// Plan is a scan plan imported from an INI file:
//
//	[scan.airband]
//	range = 118MHz, 137MHz, 25KHz
//	mode  = AM
//
//	[scan.repeaters]
//	list     = 145.6MHz, 145.625MHz
//	mode     = FM
//	priority = true
type Plan struct {
	Ranges  []RangePlan
	Entries []scanner.Entry
}

type RangePlan struct {
	Name  string
	Start float64
	End   float64
	Step  float64
	Mode  demod.Mode
}

// LoadPlan parses a plan from a file path or raw INI data.
func LoadPlan(source any) (*Plan, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, fmt.Errorf("loading scan plan: %w", err)
	}

	var plan Plan
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name != "scan" && !strings.HasPrefix(name, "scan.") {
			continue
		}
		label := strings.TrimPrefix(strings.TrimPrefix(name, "scan"), ".")

		mode := demod.FM
		if sec.HasKey("mode") {
			if mode, err = demod.ParseMode(sec.Key("mode").String()); err != nil {
				return nil, fmt.Errorf("[%s]: %w", name, err)
			}
		}

		switch {
		case sec.HasKey("range"):
			r, err := parseRange(sec.Key("range").Strings(","))
			if err != nil {
				return nil, fmt.Errorf("[%s] range: %w", name, err)
			}
			r.Name, r.Mode = label, mode
			plan.Ranges = append(plan.Ranges, r)

		case sec.HasKey("list"):
			priority := sec.Key("priority").MustBool(false)
			locked := sec.Key("locked").MustBool(false)
			for _, v := range sec.Key("list").Strings(",") {
				hz, err := parseHz(v)
				if err != nil {
					return nil, fmt.Errorf("[%s] list: %w", name, err)
				}
				plan.Entries = append(plan.Entries, scanner.Entry{
					Frequency: hz,
					Mode:      mode,
					Label:     label,
					Priority:  priority,
					Locked:    locked,
				})
			}

		default:
			return nil, fmt.Errorf("[%s]: either range or list is required", name)
		}
	}

	return &plan, nil
}

func parseRange(values []string) (RangePlan, error) {
	if len(values) != 3 {
		return RangePlan{}, fmt.Errorf("want start, stop, step; got %d values", len(values))
	}
	var hz [3]float64
	for i, v := range values {
		f, err := parseHz(v)
		if err != nil {
			return RangePlan{}, err
		}
		hz[i] = f
	}
	if hz[1] <= hz[0] || hz[2] <= 0 {
		return RangePlan{}, fmt.Errorf("invalid range %s", strings.Join(values, ", "))
	}
	return RangePlan{Start: hz[0], End: hz[1], Step: hz[2]}, nil
}

// parseHz accepts bare Hz values as well as suffixed ones such as "145.6MHz".
func parseHz(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	hz, err := rf.ParseHz(s)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	return float64(hz), nil
}
