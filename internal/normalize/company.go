package normalize

import "strings"

// CompanyName strips corporate fluff and location qualifiers from a company
// name so that regional subsidiaries compare equal to their parent
// ("Ubisoft Montreal Inc." -> "ubisoft").
func CompanyName(input string) string {
	var kept []string
	for _, token := range Tokens(input) {
		if companyFluff[token] || companyLocation[token] {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Corporate suffixes and filler words that carry no identity signal.
var companyFluff = toSet([]string{
	"ag", "and", "co", "corporation", "development", "east", "entertainment",
	"game", "games", "gmbh", "inc", "interactive", "international", "limited",
	"llc", "ltd", "media", "north", "northwest", "on-line", "online",
	"partners", "production", "productions", "publishing", "software",
	"softworks", "studio", "studios", "technologies", "the", "victor", "west",
})

// Location qualifiers used by regional subsidiaries.
var companyLocation = toSet([]string{
	"albany", "asia", "asia-pacific", "austin", "australia", "baltimore",
	"birmingham", "boston", "bucharest", "budapest", "canada", "casablanca",
	"chicago", "china", "czech", "deutschland", "edmonton", "europe",
	"france", "frankfurt", "hawaii", "italia", "japan", "kiev", "london",
	"manchester", "marin", "milan", "montpellier", "montreal", "nordic",
	"paris", "poland", "quebec", "shanghai", "sofia", "southam", "teesside",
	"tokyo", "toronto", "uk", "usa", "vancouver",
})
