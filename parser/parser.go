package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-market/models"
)

// UnknownSeller is used when a card carries no seller information.
const UnknownSeller = "No disponible"

var (
	pricePattern  = regexp.MustCompile(`\$\s*([\d.,]+)`)
	nonDigits     = regexp.MustCompile(`[^\d]`)
	sellerPrefix  = regexp.MustCompile(`(?i)^(?:vendido\s+)?por\s+`)
	officialStore = regexp.MustCompile(`(?i)\s*tienda\s*oficial.*$`)
	salesPattern  = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(mil)?\s*\+?\s*(?:vendidos?|ventas)`)
	salesPrefixed = regexp.MustCompile(`(?i)vendidos?\s*(\d+)`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// ValidateProduct ensures the extraction captured the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title")
	}
	if p.Price < 0 {
		return fmt.Errorf("product %q has negative price", p.Title)
	}
	if p.Sales < 0 {
		return fmt.Errorf("product %q has negative sales", p.Title)
	}
	return nil
}

// ParsePrice reads a localized price where '.' separates thousands and ','
// decimals. Text carrying a "$ amount" uses that amount; unreadable text
// yields 0.
func ParsePrice(text string) int {
	text = strings.TrimSpace(text)
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if text == "" {
		return 0
	}

	clean := strings.ReplaceAll(text, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	if v, err := strconv.ParseFloat(clean, 64); err == nil && !math.IsNaN(v) && v >= 0 {
		return int(v)
	}

	digits := nonDigits.ReplaceAllString(text, "")
	if v, err := strconv.Atoi(digits); err == nil {
		return v
	}
	return 0
}

// ParseSales reads sales labels such as "+500 vendidos", "+5mil vendidos"
// or "Más de 100 vendidos". Text without a sales figure yields 0.
func ParseSales(text string) int {
	if m := salesPattern.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			if err != nil {
				return 0
			}
			return int(math.Round(v * 1000))
		}
		v, err := strconv.Atoi(strings.NewReplacer(".", "", ",", "").Replace(m[1]))
		if err != nil {
			return 0
		}
		return v
	}
	if m := salesPrefixed.FindStringSubmatch(text); m != nil {
		v, _ := strconv.Atoi(m[1])
		return v
	}
	return 0
}

// CleanSeller strips the "Por " prefix and official store suffix.
func CleanSeller(text string) string {
	text = normalizeSpace(text)
	text = sellerPrefix.ReplaceAllString(text, "")
	text = officialStore.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func normalizeSpace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}
