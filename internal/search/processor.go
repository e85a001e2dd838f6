package search

import (
	"github.com/hyperjump/wortnest/internal/models"
	"github.com/hyperjump/wortnest/pkg/utils"
)

// ProcessQuery validates the query, applies defaults and tidies the text.
func ProcessQuery(query *models.SearchQuery) error {
	query.Query = utils.CollapseWhitespace(query.Query)
	query.Tag = utils.CollapseWhitespace(query.Tag)
	return query.Validate()
}
