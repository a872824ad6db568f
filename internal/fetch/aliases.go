package fetch

import (
	"github.com/feedtray/feedtray/internal/config"
	"github.com/feedtray/feedtray/internal/model"
)

type Config = config.Config
type Source = model.Source
