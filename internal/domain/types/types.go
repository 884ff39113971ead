// Package types contains API-facing types shared by the HTTP and live layers.
package types

// RankingRow is one visible leaderboard row.
// PlayerID is only populated in live broadcasts.
type RankingRow struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id,omitempty"`
	Name     string `json:"name"`
	Record   string `json:"record"`
	Date     string `json:"date"`
}

// MyRank is the caller's own position; Rank 0 means no record yet.
type MyRank struct {
	Rank   int    `json:"rank"`
	Record string `json:"record"`
}

// Page is a window of the leaderboard plus the total number of ranked players.
type Page struct {
	Items []RankingRow `json:"items"`
	Total int          `json:"total"`
}
