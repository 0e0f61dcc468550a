// Package models defines data structures shared by the scraper packages.
package models

import "time"

// Product is one listing extracted from a search or store page.
type Product struct {
	Title     string    `csv:"title" json:"title"`
	Price     int       `csv:"price" json:"price"`
	Seller    string    `csv:"seller" json:"seller"`
	Sales     int       `csv:"sales" json:"sales"`
	Link      string    `csv:"link" json:"link"`
	Image     string    `csv:"image" json:"image"`
	ScrapedAt time.Time `csv:"scraped_at" json:"scraped_at"`
}

// Summary aggregates a product list.
type Summary struct {
	Cheapest      *Product `json:"cheapest"`
	MostExpensive *Product `json:"most_expensive"`
	AveragePrice  int      `json:"average_price"`
	TotalProducts int      `json:"total_products"`
	TotalSales    int      `json:"total_sales"`
}

// SearchResult holds the outcome of a multi-page search.
type SearchResult struct {
	Query      string     `json:"query"`
	Products   []*Product `json:"products"`
	Summary    Summary    `json:"summary"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    time.Time  `json:"end_time"`
	PageCount  int        `json:"page_count"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	FailedURLs []string   `json:"failed_urls,omitempty"`
}
