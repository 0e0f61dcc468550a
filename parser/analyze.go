package parser

import "github.com/aluiziolira/go-scrape-market/models"

// Analyze summarizes products. Ties keep the first product seen.
func Analyze(products []*models.Product) models.Summary {
	var s models.Summary
	total := 0
	for _, p := range products {
		if p == nil {
			continue
		}
		if s.Cheapest == nil || p.Price < s.Cheapest.Price {
			s.Cheapest = p
		}
		if s.MostExpensive == nil || p.Price > s.MostExpensive.Price {
			s.MostExpensive = p
		}
		total += p.Price
		s.TotalSales += p.Sales
		s.TotalProducts++
	}
	if s.TotalProducts > 0 {
		s.AveragePrice = total / s.TotalProducts
	}
	return s
}
