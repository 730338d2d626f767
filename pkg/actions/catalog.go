package actions

// Metered action keys
const (
	KeyCategorySuggest = "category_suggest"
	KeyThumbnail       = "thumbnail"
	KeyFixedPage       = "fixed_page"
	KeyQualityAnalysis = "quality_analysis"
	KeyTranslate       = "translate"
)

// Action is a catalog entry for a metered AI action: what it costs per
// use and how many times per day it may run.
type Action struct {
	Key         string
	Cost        int
	DailyLimit  int
	Description string
}

var catalog = []Action{
	{Key: KeyCategorySuggest, Cost: 2, DailyLimit: 5, Description: "Suggest a category name for a memo"},
	{Key: KeyThumbnail, Cost: 2, DailyLimit: 5, Description: "Generate a thumbnail prompt for a memo"},
	{Key: KeyFixedPage, Cost: 2, DailyLimit: 5, Description: "Generate fixed-page content"},
	{Key: KeyQualityAnalysis, Cost: 6, DailyLimit: 5, Description: "Score memo quality and translation value"},
	{Key: KeyTranslate, Cost: 4, DailyLimit: 5, Description: "Translate a memo"},
}

// Lookup returns the catalog entry for key
func Lookup(key string) (Action, bool) {
	for _, a := range catalog {
		if a.Key == key {
			return a, true
		}
	}
	return Action{}, false
}

// All returns every catalog entry
func All() []Action {
	out := make([]Action, len(catalog))
	copy(out, catalog)
	return out
}
