package catalog

import (
	"time"

	"github.com/questlogapp/questlog-server/internal/domain"
)

// Raw API response types (internal)

type rawGame struct {
	ID               uint64     `json:"id"`
	Name             string     `json:"name"`
	AlternativeNames []rawAlias `json:"alternative_names"`
	FirstReleaseDate int64      `json:"first_release_date"`
	Collection       uint64     `json:"collection"`
	InvolvedCompanies []struct {
		Company uint64 `json:"company"`
	} `json:"involved_companies"`
	Genres   []uint64 `json:"genres"`
	Keywords []uint64 `json:"keywords"`
}

type rawAlias struct {
	Name string `json:"name"`
}

type rawAnnotation struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type rawExternalGame struct {
	ID       uint64 `json:"id"`
	Game     uint64 `json:"game"`
	UID      string `json:"uid"`
	Category int    `json:"category"`
}

// Upstream storefront category codes.
const (
	categorySteam = 1
	categoryGOG   = 5
	categoryEGS   = 26
)

// storefrontFromCategory maps an upstream external-game category to a
// supported storefront. Unsupported categories return false.
func storefrontFromCategory(category int) (domain.Storefront, bool) {
	switch category {
	case categorySteam:
		return domain.StorefrontSteam, true
	case categoryGOG:
		return domain.StorefrontGOG, true
	case categoryEGS:
		return domain.StorefrontEGS, true
	}
	return "", false
}

func (g *rawGame) toDomain() *domain.CatalogEntry {
	aliases := make([]string, 0, len(g.AlternativeNames))
	for _, alias := range g.AlternativeNames {
		if alias.Name != "" {
			aliases = append(aliases, alias.Name)
		}
	}

	companies := make([]uint64, 0, len(g.InvolvedCompanies))
	for _, ic := range g.InvolvedCompanies {
		if ic.Company != 0 {
			companies = append(companies, ic.Company)
		}
	}

	year := 0
	if g.FirstReleaseDate > 0 {
		year = time.Unix(g.FirstReleaseDate, 0).UTC().Year()
	}

	return &domain.CatalogEntry{
		ID:           g.ID,
		Title:        g.Name,
		Aliases:      aliases,
		ReleaseYear:  year,
		CollectionID: g.Collection,
		CompanyIDs:   companies,
		GenreIDs:     g.Genres,
		KeywordIDs:   g.Keywords,
	}
}

func (a *rawAnnotation) toDomain() *domain.Annotation {
	return &domain.Annotation{
		ID:   a.ID,
		Name: a.Name,
		Slug: a.Slug,
	}
}
