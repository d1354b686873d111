package config

import "sort"

// Categories maps the category names accepted on the command line to the
// origin's category codes.
var Categories = map[string]string{
	"all":               "0_0",
	"anime":             "1_0",
	"anime_amv":         "1_1",
	"anime_english":     "1_2",
	"anime_non_english": "1_3",
	"anime_raw":         "1_4",
}

// Filters maps filter names to the origin's filter codes.
var Filters = map[string]string{
	"no_filter":  "0",
	"no_remakes": "1",
	"trusted":    "2",
}

// CategoryNames returns the category names in sorted order.
func CategoryNames() []string {
	names := make([]string, 0, len(Categories))
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
