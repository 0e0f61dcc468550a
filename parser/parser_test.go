package parser

import (
	"math"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name:    "valid product",
			product: &models.Product{Title: "Mate imperial", Price: 25000, Seller: "Tienda Mate", Link: "https://example.test/p"},
		},
		{name: "nil product", product: nil, wantErr: true},
		{name: "missing title", product: &models.Product{Title: "  ", Price: 10}, wantErr: true},
		{name: "negative price", product: &models.Product{Title: "Mate", Price: -1}, wantErr: true},
		{name: "negative sales", product: &models.Product{Title: "Mate", Sales: -3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"12.999", 12999},
		{"$ 1.234.567", 1234567},
		{"$1.234,56", 1234},
		{"  850  ", 850},
		{"Antes: $ 20.000 Ahora $ 15.000", 20000},
		{"1,2,3", 123},
		{"", 0},
		{"sin precio", 0},
	}
	for _, tt := range tests {
		if got := ParsePrice(tt.input); got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseSales(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"+500 vendidos", 500},
		{"+5mil vendidos", 5000},
		{"+10 mil vendidos", 10000},
		{"Más de 100 vendidos", 100},
		{"1 vendido", 1},
		{"250+ vendidos", 250},
		{"1.234 ventas", 1234},
		{"Vendidos 42", 42},
		{"Nuevo", 0},
	}
	for _, tt := range tests {
		if got := ParseSales(tt.input); got != tt.want {
			t.Errorf("ParseSales(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestCleanSeller(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Por Tienda Mate", "Tienda Mate"},
		{"por  Electro Sur", "Electro Sur"},
		{"Samsung Tienda oficial", "Samsung"},
		{"Vendido por Juan", "Juan"},
		{"  Casa Roja  ", "Casa Roja"},
	}
	for _, tt := range tests {
		if got := CleanSeller(tt.input); got != tt.want {
			t.Errorf("CleanSeller(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Notebook Lenovo", "notebook lenovo"); got != 1 {
		t.Fatalf("case-insensitive identical strings = %v, want 1", got)
	}
	if got := Similarity("", ""); got != 1 {
		t.Fatalf("empty strings = %v, want 1", got)
	}
	if got := Similarity("abcd", "bcde"); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("Similarity(abcd, bcde) = %v, want 0.75", got)
	}
	if got := Similarity("notebook lenovo", "notebook lenovo ideapad 3"); got < ExactMatchThreshold {
		t.Fatalf("close title scored %v", got)
	}
	if got := Similarity("notebook lenovo", "funda para celular"); got >= ExactMatchThreshold {
		t.Fatalf("unrelated title scored %v", got)
	}
}

func TestAnalyze(t *testing.T) {
	products := []*models.Product{
		{Title: "a", Price: 300, Sales: 5},
		{Title: "b", Price: 100, Sales: 10},
		{Title: "c", Price: 500, Sales: 0},
		{Title: "d", Price: 100, Sales: 1},
	}
	s := Analyze(products)
	if s.Cheapest.Title != "b" || s.MostExpensive.Title != "c" {
		t.Fatalf("cheapest = %s, most expensive = %s", s.Cheapest.Title, s.MostExpensive.Title)
	}
	if s.AveragePrice != 250 || s.TotalProducts != 4 || s.TotalSales != 16 {
		t.Fatalf("summary = %+v", s)
	}

	empty := Analyze(nil)
	if empty.Cheapest != nil || empty.MostExpensive != nil || empty.AveragePrice != 0 {
		t.Fatalf("empty summary = %+v", empty)
	}
}

const listingPage = `<html><body><ol>
<li class="ui-search-layout__item">
  <div class="poly-card__content">
    <h3 class="poly-component__title-wrapper"><a href="https://articulo.test/MLA-1">Mate Imperial de Calabaza</a></h3>
    <span class="poly-component__seller">Por Tienda Mate</span>
    <div class="poly-price__current"><span class="andes-money-amount__fraction">25.500</span></div>
    <span class="poly-component__sold">+5mil vendidos</span>
    <img data-src="https://img.test/1.jpg" src="data:placeholder">
  </div>
</li>
<li class="ui-search-layout__item">
  <div class="poly-card__content">
    <a class="poly-component__title" href="https://articulo.test/MLA-2">Bombilla de Alpaca</a>
    <p class="ui-search-official-store-label">Alpaca Sur Tienda oficial</p>
    <div class="poly-component__price">$ 4.200</div>
    <span class="ui-search-sales__label">+50 vendidos</span>
    <img src="https://img.test/2.jpg">
  </div>
</li>
<li class="ui-search-layout__item">
  <div class="poly-card__content">
    <span>sin titulo</span>
  </div>
</li>
</ol></body></html>`

func TestParsePageExtractsCards(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	page, err := ParsePage(listingPage, Filters{}, now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(page.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(page.Outcomes))
	}
	if page.Count(Accepted) != 2 || page.Count(Failed) != 1 {
		t.Fatalf("accepted = %d failed = %d", page.Count(Accepted), page.Count(Failed))
	}

	products := page.Products()
	first := products[0]
	if first.Title != "Mate Imperial de Calabaza" || first.Link != "https://articulo.test/MLA-1" {
		t.Fatalf("first title/link = %q %q", first.Title, first.Link)
	}
	if first.Price != 25500 || first.Seller != "Tienda Mate" || first.Sales != 5000 {
		t.Fatalf("first product = %+v", first)
	}
	if first.Image != "https://img.test/1.jpg" || !first.ScrapedAt.Equal(now) {
		t.Fatalf("first image/time = %q %s", first.Image, first.ScrapedAt)
	}

	second := products[1]
	if second.Title != "Bombilla de Alpaca" || second.Link != "https://articulo.test/MLA-2" {
		t.Fatalf("second title/link = %q %q", second.Title, second.Link)
	}
	if second.Price != 4200 || second.Seller != "Alpaca Sur" || second.Sales != 50 || second.Image != "https://img.test/2.jpg" {
		t.Fatalf("second product = %+v", second)
	}
}

func TestParsePageFilters(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		filters  Filters
		accepted []string
	}{
		{name: "min price", filters: Filters{MinPrice: 10000}, accepted: []string{"Mate Imperial de Calabaza"}},
		{name: "min sales", filters: Filters{MinSales: 100}, accepted: []string{"Mate Imperial de Calabaza"}},
		{name: "seller substring", filters: Filters{Seller: "alpaca"}, accepted: []string{"Bombilla de Alpaca"}},
		{name: "exact match", filters: Filters{Query: "bombilla alpaca", ExactMatch: true}, accepted: []string{"Bombilla de Alpaca"}},
		{name: "store seller overrides", filters: Filters{StoreSeller: "Mi Tienda", Seller: "mi tienda"}, accepted: []string{"Mate Imperial de Calabaza", "Bombilla de Alpaca"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := ParsePage(listingPage, tt.filters, now)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			var got []string
			for _, p := range page.Products() {
				got = append(got, p.Title)
			}
			if len(got) != len(tt.accepted) {
				t.Fatalf("accepted = %v, want %v", got, tt.accepted)
			}
			for i := range got {
				if got[i] != tt.accepted[i] {
					t.Fatalf("accepted = %v, want %v", got, tt.accepted)
				}
			}
			if page.Count(Skipped)+len(got)+page.Count(Failed) != len(page.Outcomes) {
				t.Fatalf("outcomes do not add up")
			}
		})
	}
}

func TestParsePageWithoutCards(t *testing.T) {
	page, err := ParsePage(`<html><body><div class="ui-search-no-results">Nada</div></body></html>`, Filters{}, time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !page.NoResults || len(page.Outcomes) != 0 {
		t.Fatalf("page = %+v, want no results", page)
	}
}

func TestParsePageFallbacks(t *testing.T) {
	html := `<div class="ui-search-result__wrapper">
  <a href="https://articulo.test/MLA-9">Termo acero inoxidable 1 litro</a>
  <div><span>Precio especial $ 31.000</span></div>
  <p>Vendido por Casa Termo</p>
</div>`
	page, err := ParsePage(html, Filters{}, time.Now())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	products := page.Products()
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
	p := products[0]
	if p.Title != "Termo acero inoxidable 1 litro" || p.Link != "https://articulo.test/MLA-9" {
		t.Fatalf("title/link = %q %q", p.Title, p.Link)
	}
	if p.Price != 31000 || p.Seller != "Casa Termo" || p.Sales != 0 {
		t.Fatalf("product = %+v", p)
	}
}
