package models

// MNewsItem is one historical news headline fragment.
type MNewsItem struct {
	Time         string `json:"time"` // vendor-formatted timestamp, verbatim
	ProviderCode string `json:"provider_code"`
	ArticleID    string `json:"article_id"`
	Headline     string `json:"headline"`
}

// -----------------------------------------------------------------------------

// MNewsQuery parameterizes one historical news request.
type MNewsQuery struct {
	Symbol        string `json:"symbol"`
	ConID         int64  `json:"con_id"`
	ProviderCodes string `json:"provider_codes"` // empty means all
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	TotalResults  int    `json:"total_results"`
}

// -----------------------------------------------------------------------------

// MNewsSummary describes one completed news request.
type MNewsSummary struct {
	ReqID     int64      `json:"req_id"`
	Symbol    string     `json:"symbol"`
	Count     int        `json:"count"`
	Providers []string   `json:"providers"`
	Items     []MNewsItem `json:"items"`
}
