package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-market/models"
)

// ExactMatchThreshold is the minimum title similarity for exact matching.
const ExactMatchThreshold = 0.7

// Status tags what happened to a card.
type Status string

const (
	Accepted Status = "accepted"
	Skipped  Status = "skipped"
	Failed   Status = "failed"
)

// Outcome is the result of extracting one card.
type Outcome struct {
	Status  Status
	Product *models.Product
	Reason  string
}

// Filters narrow the accepted products.
type Filters struct {
	Query      string
	ExactMatch bool
	MinPrice   int
	MinSales   int
	// Seller keeps cards whose seller contains it, case-insensitively.
	Seller string
	// StoreSeller, when set, is used as the seller of every card.
	StoreSeller string
}

// Page is the extraction result of one listing page.
type Page struct {
	Outcomes  []Outcome
	NoResults bool
}

// Products returns the accepted products in page order.
func (p Page) Products() []*models.Product {
	var out []*models.Product
	for _, o := range p.Outcomes {
		if o.Status == Accepted {
			out = append(out, o.Product)
		}
	}
	return out
}

// Count returns how many outcomes have status s.
func (p Page) Count(s Status) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

var cardSelectors = []string{
	"li.ui-search-layout__item",
	"div.poly-card__content",
	"li.shops__layout-item",
	"div.ui-search-result__wrapper",
	"div.ui-search-result__content-wrapper",
	"div.store-items__layout-item",
	"div.store-items__result-wrapper",
}

var titleSelectors = []string{
	"a.poly-component__title",
	"h2.ui-search-item__title",
	"h3.poly-component__title-wrapper",
	"h2.shops__item-title",
	"h2.ui-search-result-title",
}

var priceSelectors = []string{
	"div.poly-component__price",
	"div.poly-price__current",
	"span.andes-money-amount__fraction",
	"span.price-tag-amount",
	"span.ui-search-price__part",
	"div.ui-search-price__second-line",
	"span.price-tag-fraction",
}

var sellerSelectors = []string{
	"span.poly-component__seller",
	"p.ui-search-official-store-label",
	"p.shops__item-seller-detail",
	"span.ui-search-item__brand-discoverability",
	"span.ui-search-item__group__element",
	"div.store-info",
	"a.store-name",
}

var salesSelectors = []string{
	"span.ui-search-sales__label",
	"div.sales-info",
	"span.item-sales",
	"p.ui-search-seller-info",
	"div.ui-search-item__info",
}

var sellerInText = regexp.MustCompile(`(?i)(?:vendido\s+)?\bpor\s+(.+)`)

// ParsePage extracts every product card of a listing page and applies f.
func ParsePage(html string, f Filters, now time.Time) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	var page Page
	cards := findCards(doc)
	if cards == nil {
		page.NoResults = true
		return page, nil
	}

	cards.Each(func(_ int, card *goquery.Selection) {
		page.Outcomes = append(page.Outcomes, extractCard(card, f, now))
	})
	return page, nil
}

func findCards(doc *goquery.Document) *goquery.Selection {
	for _, sel := range cardSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func extractCard(card *goquery.Selection, f Filters, now time.Time) Outcome {
	title, link := extractTitle(card)
	if title == "" {
		return Outcome{Status: Failed, Reason: "missing title"}
	}

	p := &models.Product{
		Title:     title,
		Link:      link,
		Price:     extractPrice(card),
		Image:     extractImage(card),
		Sales:     extractSales(card),
		ScrapedAt: now,
	}
	if f.StoreSeller != "" {
		p.Seller = f.StoreSeller
	} else {
		p.Seller = extractSeller(card)
	}

	if reason := f.reject(p); reason != "" {
		return Outcome{Status: Skipped, Product: p, Reason: reason}
	}
	return Outcome{Status: Accepted, Product: p}
}

// reject returns why p fails the filters, or "" when it passes.
func (f Filters) reject(p *models.Product) string {
	if f.ExactMatch && f.Query != "" {
		if sim := Similarity(f.Query, p.Title); sim < ExactMatchThreshold {
			return fmt.Sprintf("title similarity %.2f below %.2f", sim, ExactMatchThreshold)
		}
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return fmt.Sprintf("price %d below minimum %d", p.Price, f.MinPrice)
	}
	if f.MinSales > 0 && p.Sales < f.MinSales {
		return fmt.Sprintf("sales %d below minimum %d", p.Sales, f.MinSales)
	}
	if f.Seller != "" && !strings.Contains(strings.ToLower(p.Seller), strings.ToLower(f.Seller)) {
		return fmt.Sprintf("seller %q does not match %q", p.Seller, f.Seller)
	}
	return ""
}

func extractTitle(card *goquery.Selection) (string, string) {
	for _, sel := range titleSelectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if inner := el.Find("a").First(); !el.Is("a") && inner.Length() > 0 {
			href, _ := inner.Attr("href")
			return normalizeSpace(inner.Text()), href
		}
		title := normalizeSpace(el.Text())
		if href, ok := el.Attr("href"); ok && el.Is("a") {
			return title, href
		}
		if parent := el.Parent(); parent.Is("a") {
			href, _ := parent.Attr("href")
			return title, href
		}
		return title, ""
	}

	var title, link string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := normalizeSpace(a.Text())
		if len([]rune(text)) <= 10 {
			return true
		}
		title = text
		link, _ = a.Attr("href")
		return false
	})
	return title, link
}

func extractPrice(card *goquery.Selection) int {
	for _, sel := range priceSelectors {
		el := card.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if fraction := el.Find("span.andes-money-amount__fraction").First(); fraction.Length() > 0 {
			return ParsePrice(fraction.Text())
		}
		return ParsePrice(el.Text())
	}

	price := 0
	card.Find("span, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := pricePattern.FindStringSubmatch(s.Text()); m != nil {
			price = ParsePrice(m[1])
			return false
		}
		return true
	})
	return price
}

func extractSeller(card *goquery.Selection) string {
	for _, sel := range sellerSelectors {
		if el := card.Find(sel).First(); el.Length() > 0 {
			if seller := CleanSeller(el.Text()); seller != "" {
				return seller
			}
		}
	}

	seller := ""
	card.Find("div, span, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		if m := sellerInText.FindStringSubmatch(normalizeSpace(s.Text())); m != nil {
			seller = CleanSeller(m[1])
			return seller == ""
		}
		return true
	})
	if seller != "" {
		return seller
	}

	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "tienda") || strings.Contains(href, "seller") {
			seller = normalizeSpace(a.Text())
			return seller == ""
		}
		return true
	})
	if seller != "" {
		return seller
	}
	return UnknownSeller
}

func extractSales(card *goquery.Selection) int {
	for _, sel := range salesSelectors {
		if el := card.Find(sel).First(); el.Length() > 0 {
			if n := ParseSales(el.Text()); n > 0 {
				return n
			}
		}
	}

	sales := 0
	card.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		sales = ParseSales(normalizeSpace(s.Text()))
		return sales == 0
	})
	return sales
}

func extractImage(card *goquery.Selection) string {
	img := card.Find("img").First()
	for _, attr := range []string{"data-src", "src"} {
		if v, ok := img.Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}
