package flow

// Languages the assistant can reply in.
var Languages = []string{
	"English",
	"Filipino",
	"Bahasa Indonesia",
	"Tiếng Việt",
	"ไทย",
}

// Countries with tailored agronomy advice.
var Countries = []string{
	"Philippines",
	"Indonesia",
	"Vietnam",
	"Thailand",
	"Malaysia",
}

// regionsByCountry maps a country to its selectable regions. Countries
// absent from this map fall back to free-text region entry.
var regionsByCountry = map[string][]string{
	"Philippines": {"Luzon", "Visayas", "Mindanao"},
	"Indonesia":   {"Sumatra", "Java", "Kalimantan", "Sulawesi", "Bali & Nusa Tenggara"},
	"Vietnam":     {"Northern Vietnam", "Central Vietnam", "Southern Vietnam"},
	"Thailand":    {"Northern Thailand", "Isan", "Central Thailand", "Southern Thailand"},
	"Malaysia":    {"Peninsular Malaysia", "Sabah", "Sarawak"},
}

// RegionsOf returns the selectable regions for a country, or nil when the
// user should type a region instead.
func RegionsOf(country string) []string {
	return regionsByCountry[country]
}
