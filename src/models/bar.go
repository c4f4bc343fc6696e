package models

// MDataBar is one historical data fragment as delivered by the gateway.
type MDataBar struct {
	Timestamp int64   `json:"timestamp"` // unix seconds, bar start
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	WAP       float64 `json:"wap"`
	Count     int     `json:"count"`
}

// -----------------------------------------------------------------------------

// MDataSummary describes one symbol's completed historical download.
// Bars is the underlying row set handed off opaquely to exporters.
type MDataSummary struct {
	Symbol         string     `json:"symbol"`
	RecordCount    int        `json:"record_count"`
	FirstTimestamp int64      `json:"first_timestamp"`
	LastTimestamp  int64      `json:"last_timestamp"`
	Bars           []MDataBar `json:"-"`
}

// -----------------------------------------------------------------------------

// MBatchParams are the shared parameters of a historical batch download.
type MBatchParams struct {
	SecType    string `json:"sec_type"`
	Exchange   string `json:"exchange"`
	Currency   string `json:"currency"`
	Duration   string `json:"duration"`  // e.g. "1 Y", "30 D"
	BarSize    string `json:"bar_size"`  // e.g. "1 day", "5 mins"
	WhatToShow string `json:"what_to_show"`
	UseRTH     bool   `json:"use_rth"`
	EndDate    string `json:"end_date"` // empty means "now"
}
