// Package search runs multi-page product and seller searches against the
// marketplace listing pages.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
)

// PageSize is the number of listings per results page.
const PageSize = 50

// Fetcher is the fetch contract the searches depend on.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// Params configures one search.
type Params struct {
	Query      string
	ExactMatch bool
	MaxPages   int
	MinPrice   int
	MinSales   int
	Seller     string
}

// Service builds listing URLs and aggregates parsed pages.
type Service struct {
	fetcher  Fetcher
	baseURL  string
	maxPages int
	now      func() time.Time
}

// NewService returns a search service. maxPages is the default page budget
// when Params.MaxPages is zero.
func NewService(f Fetcher, baseURL string, maxPages int) *Service {
	return &Service{
		fetcher:  f,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		maxPages: maxPages,
		now:      time.Now,
	}
}

// ProductURL returns the listing URL of a zero-based results page.
func ProductURL(base, query string, page int) string {
	slug := strings.Join(strings.Fields(query), "-")
	return fmt.Sprintf("%s/%s_Desde_%d_NoIndex_True", strings.TrimSuffix(base, "/"), slug, page*PageSize+1)
}

// SellerURL returns a store listing URL sorted by descending price.
func SellerURL(base, seller string, page int) string {
	slug := strings.ToLower(strings.Join(strings.Fields(seller), "-"))
	base = strings.TrimSuffix(base, "/")
	if page == 0 {
		return fmt.Sprintf("%s/tienda/%s/_OrderId_PRICE*DESC_NoIndex_True", base, slug)
	}
	return fmt.Sprintf("%s/tienda/%s/_Desde_%d_OrderId_PRICE*DESC_NoIndex_True", base, slug, page*PageSize+1)
}

// Products searches listings for p.Query.
func (s *Service) Products(ctx context.Context, p Params) (*models.SearchResult, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	filters := parser.Filters{
		Query:      query,
		ExactMatch: p.ExactMatch,
		MinPrice:   p.MinPrice,
		MinSales:   p.MinSales,
		Seller:     p.Seller,
	}
	return s.run(ctx, query, s.pages(p), filters, func(page int) string {
		return ProductURL(s.baseURL, query, page)
	})
}

// Seller lists the products of one store. Every product carries the store
// name as its seller.
func (s *Service) Seller(ctx context.Context, seller string, p Params) (*models.SearchResult, error) {
	seller = strings.TrimSpace(seller)
	if seller == "" {
		return nil, errors.New("seller name is required")
	}
	filters := parser.Filters{
		Query:       p.Query,
		ExactMatch:  p.ExactMatch && p.Query != "",
		MinPrice:    p.MinPrice,
		MinSales:    p.MinSales,
		StoreSeller: seller,
	}
	return s.run(ctx, seller, s.pages(p), filters, func(page int) string {
		return SellerURL(s.baseURL, seller, page)
	})
}

func (s *Service) pages(p Params) int {
	if p.MaxPages > 0 {
		return p.MaxPages
	}
	if s.maxPages > 0 {
		return s.maxPages
	}
	return 1
}

// run walks pages until the budget is spent, a page has no cards or a
// fetch fails. A failure on the first page is returned as an error.
func (s *Service) run(ctx context.Context, label string, maxPages int, f parser.Filters, pageURL func(int) string) (*models.SearchResult, error) {
	result := &models.SearchResult{Query: label, StartTime: s.now()}
	defer func() {
		result.EndTime = s.now()
		result.Summary = parser.Analyze(result.Products)
	}()

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		u := pageURL(page)
		slog.Info("fetching results page", slog.String("query", label), slog.Int("page", page+1), slog.String("url", u))

		body, err := s.fetcher.Get(ctx, u)
		if err != nil {
			result.FailedURLs = append(result.FailedURLs, u)
			if page == 0 {
				return result, fmt.Errorf("fetch first page: %w", err)
			}
			slog.Warn("stopping search after fetch error", slog.String("url", u), slog.Any("error", err))
			break
		}

		parsed, err := parser.ParsePage(body, f, s.now())
		if err != nil {
			return result, fmt.Errorf("parse page %d: %w", page+1, err)
		}
		result.PageCount++
		if parsed.NoResults {
			slog.Info("no more results", slog.String("query", label), slog.Int("page", page+1))
			break
		}

		for _, o := range parsed.Outcomes {
			switch o.Status {
			case parser.Skipped:
				result.Skipped++
				slog.Debug("card skipped", slog.String("title", o.Product.Title), slog.String("reason", o.Reason))
			case parser.Failed:
				result.Failed++
				slog.Debug("card failed", slog.String("reason", o.Reason))
			}
		}
		result.Products = append(result.Products, parsed.Products()...)
	}

	slog.Info("search complete",
		slog.String("query", label),
		slog.Int("pages", result.PageCount),
		slog.Int("products", len(result.Products)),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
