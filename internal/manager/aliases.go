package manager

import (
	"github.com/feedtray/feedtray/internal/config"
	"github.com/feedtray/feedtray/internal/model"
	"github.com/feedtray/feedtray/internal/store"
)

type Config = config.Config
type Store = store.Store
type Source = model.Source
type Article = model.Article
type RefreshResult = model.RefreshResult
type RefreshReport = model.RefreshReport
