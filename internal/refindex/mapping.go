package refindex

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildTitleMapping creates the Bleve mapping for the per-generation title
// index. The index exists purely for candidate generation: token recall over
// titles and aliases, no stemming, no stored fields beyond the doc id.
func buildTitleMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = simple.Name

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = simple.Name
	titleFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	aliasFieldMapping := bleve.NewTextFieldMapping()
	aliasFieldMapping.Analyzer = simple.Name
	aliasFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("alias", aliasFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
