package decision

import "strings"

// Item is a piece of equipment required by a process, with its estimated cost.
type Item struct {
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// Gap is the equipment a client must buy before running a process.
type Gap struct {
	Missing []Item  `json:"missing"`
	CapEx   float64 `json:"capex"`
}

// AnalyzeGap returns the required items the client does not own and their
// total cost. Names are compared with NormalizeName. The result keeps the
// order of required and lists each missing name once, first occurrence wins.
func AnalyzeGap(required []Item, available []string) Gap {
	owned := make(map[string]struct{}, len(available))
	for _, name := range available {
		owned[NormalizeName(name)] = struct{}{}
	}

	gap := Gap{Missing: []Item{}}
	seen := make(map[string]struct{}, len(required))
	for _, item := range required {
		key := NormalizeName(item.Name)
		if _, ok := owned[key]; ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		gap.Missing = append(gap.Missing, item)
		gap.CapEx += item.Cost
	}
	return gap
}

// NormalizeName lowercases s and collapses whitespace so "Spray  Dryer" and
// "spray dryer" name the same equipment.
func NormalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
