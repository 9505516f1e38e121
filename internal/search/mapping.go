package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the mapping for message documents. Message text is
// stemmed, ids are exact keywords.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = en.AnalyzerName
	textField.Store = true
	textField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("text", textField)

	senderField := bleve.NewTextFieldMapping()
	senderField.Analyzer = simple.Name
	senderField.Store = true
	docMapping.AddFieldMappingsAt("sender", senderField)

	for _, name := range []string{"group_id", "message_id"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	tsField := bleve.NewDateTimeFieldMapping()
	tsField.Store = true
	docMapping.AddFieldMappingsAt("timestamp", tsField)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
