package cli

import "github.com/feedtray/feedtray/internal/model"

type AddSourceResponse struct {
	Source        model.Source        `json:"source"`
	Inserted      bool                `json:"inserted"`
	DiscoveredURL string              `json:"discovered_url"`
	Refresh       model.RefreshResult `json:"refresh"`
}

type RemoveSourceResponse struct {
	RemovedSourceID string `json:"removed_source_id"`
}

type ReadResponse struct {
	ArticleID string  `json:"article_id,omitempty"`
	SourceID  string  `json:"source_id,omitempty"`
	Tag       *string `json:"tag,omitempty"`
	All       bool    `json:"all,omitempty"`
}

type OrderResponse struct {
	OrderedSourceIDs []string `json:"ordered_source_ids"`
}

type ImportResult struct {
	FeedURL  string `json:"feed_url"`
	SourceID string `json:"source_id,omitempty"`
	Added    bool   `json:"added"`
	Error    string `json:"error,omitempty"`
}

type ImportReport struct {
	File     string         `json:"file"`
	Total    int            `json:"total"`
	Added    int            `json:"added"`
	Existing int            `json:"existing"`
	Failed   int            `json:"failed"`
	Results  []ImportResult `json:"results"`
}
