package countries

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Region groups countries for scheduling defaults (importance tier and a
// rough UTC offset for the awake-window boost).
type Region string

const (
	Europe     Region = "europe"
	Asia       Region = "asia"
	Africa     Region = "africa"
	Americas   Region = "americas"
	Oceania    Region = "oceania"
	MiddleEast Region = "middleeast"
)

var regions = map[Region][]string{
	Europe: {
		"albania", "austria", "belarus", "belgium", "bulgaria", "croatia",
		"czech republic", "denmark", "estonia", "finland", "france", "germany",
		"greece", "hungary", "iceland", "ireland", "italy", "latvia",
		"lithuania", "luxembourg", "malta", "moldova", "netherlands", "norway",
		"poland", "portugal", "romania", "russia", "serbia", "slovakia",
		"slovenia", "spain", "sweden", "switzerland", "ukraine", "united kingdom",
	},
	Asia: {
		"afghanistan", "bangladesh", "cambodia", "china", "india", "indonesia",
		"japan", "kazakhstan", "malaysia", "mongolia", "myanmar", "nepal",
		"north korea", "pakistan", "philippines", "singapore", "south korea",
		"sri lanka", "taiwan", "thailand", "vietnam",
	},
	Africa: {
		"algeria", "angola", "cameroon", "egypt", "ethiopia", "ghana", "kenya",
		"libya", "morocco", "mozambique", "nigeria", "senegal", "somalia",
		"south africa", "sudan", "tanzania", "tunisia", "uganda", "zambia",
		"zimbabwe",
	},
	Americas: {
		"argentina", "bolivia", "brazil", "canada", "chile", "colombia",
		"costa rica", "cuba", "dominican republic", "ecuador", "el salvador",
		"guatemala", "haiti", "honduras", "jamaica", "mexico", "nicaragua",
		"panama", "paraguay", "peru", "united states", "uruguay", "venezuela",
	},
	Oceania: {
		"australia", "fiji", "new zealand", "papua new guinea",
	},
	MiddleEast: {
		"bahrain", "iran", "iraq", "israel", "jordan", "kuwait", "lebanon",
		"oman", "palestine", "qatar", "saudi arabia", "syria", "turkey",
		"united arab emirates", "yemen",
	},
}

// Rough center-of-mass UTC offsets per region, in hours. Good enough to
// decide whether a country's audience is likely awake.
var regionUTCOffsets = map[Region]int{
	Europe:     1,
	Asia:       7,
	Africa:     2,
	Americas:   -5,
	Oceania:    10,
	MiddleEast: 3,
}

// A few countries sit far from their region's center; override them.
var countryUTCOffsets = map[string]int{
	"united states": -6,
	"canada":        -6,
	"brazil":        -3,
	"argentina":     -3,
	"chile":         -4,
	"russia":        3,
	"india":         5,
	"china":         8,
	"japan":         9,
	"south korea":   9,
	"indonesia":     7,
	"australia":     10,
	"new zealand":   12,
	"united kingdom": 0,
	"portugal":       0,
	"iceland":        0,
}

// Importance tiers carried over from production tuning: large, highly
// active sources get polled first when everything else is equal.
var highImportance = map[string]float64{
	"united states": 10.0, "india": 9.0, "united kingdom": 9.0,
	"china": 8.0, "canada": 8.0, "brazil": 7.0, "australia": 7.0,
	"germany": 7.0, "france": 6.0, "japan": 6.0, "south korea": 6.0,
	"russia": 6.0, "mexico": 5.0, "spain": 5.0, "italy": 5.0, "turkey": 5.0,
}

var mediumImportance = map[string]float64{
	"poland": 4.0, "netherlands": 4.0, "sweden": 4.0, "argentina": 4.0,
	"indonesia": 4.0, "philippines": 4.0, "thailand": 4.0,
	"south africa": 4.0, "egypt": 4.0, "nigeria": 4.0,
}

const defaultImportance = 2.0

var (
	countryToRegion = map[string]Region{}
	all             []string
	titleCaser      = cases.Title(language.English)
)

func init() {
	for region, names := range regions {
		for _, name := range names {
			countryToRegion[name] = region
			all = append(all, name)
		}
	}
}

// Normalize maps arbitrary casing/whitespace onto the canonical lowercase
// key used everywhere (storage, scheduler, aggregates).
func Normalize(country string) string {
	return strings.ToLower(strings.TrimSpace(country))
}

// Display renders a canonical key for human-facing output.
func Display(country string) string {
	return titleCaser.String(Normalize(country))
}

// All returns the canonical keys of every known country.
func All() []string {
	out := make([]string, len(all))
	copy(out, all)
	return out
}

func Known(country string) bool {
	_, ok := countryToRegion[Normalize(country)]
	return ok
}

func RegionOf(country string) Region {
	if region, ok := countryToRegion[Normalize(country)]; ok {
		return region
	}
	return Europe
}

// UTCOffset returns the approximate UTC offset in hours for a country.
func UTCOffset(country string) int {
	key := Normalize(country)
	if offset, ok := countryUTCOffsets[key]; ok {
		return offset
	}
	return regionUTCOffsets[RegionOf(key)]
}

// Importance returns the scheduling importance tier for a country.
func Importance(country string) float64 {
	key := Normalize(country)
	if score, ok := highImportance[key]; ok {
		return score
	}
	if score, ok := mediumImportance[key]; ok {
		return score
	}
	return defaultImportance
}
