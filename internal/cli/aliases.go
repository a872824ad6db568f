package cli

import "github.com/feedtray/feedtray/internal/model"

type OutputFormat = model.OutputFormat
type Source = model.Source
type Article = model.Article
type TagGroup = model.TagGroup
type RefreshResult = model.RefreshResult
type RefreshReport = model.RefreshReport
type ArticleListOptions = model.ArticleListOptions

const (
	OutputTable = model.OutputTable
	OutputJSON  = model.OutputJSON
	OutputWide  = model.OutputWide
)
