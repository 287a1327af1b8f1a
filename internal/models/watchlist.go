package models

import "time"

// Watchlist is a named list of owner patterns kept as a CSV file
type Watchlist struct {
	Name     string    `json:"name"`
	File     string    `json:"file"`
	Modified time.Time `json:"modified"`
}

// WatchlistsResponse lists the available watchlists
type WatchlistsResponse struct {
	Watchlists []Watchlist `json:"watchlists"`
}
