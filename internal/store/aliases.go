package store

import "github.com/feedtray/feedtray/internal/model"

type Source = model.Source
type Article = model.Article
type ArticleListOptions = model.ArticleListOptions
type TagGroup = model.TagGroup
