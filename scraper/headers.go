package scraper

import (
	"math/rand/v2"
	"net/http"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

var acceptLanguages = []string{
	"es-AR,es;q=0.9,en;q=0.8",
	"es-ES,es;q=0.9,en;q=0.8",
	"es-419,es;q=0.9",
	"es-MX,es;q=0.9,en-US;q=0.7,en;q=0.6",
	"en-US,en;q=0.9,es;q=0.8",
}

var referers = []string{
	"https://www.google.com/",
	"https://www.google.com.ar/",
	"https://www.mercadolibre.com.ar/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.IntN(len(pool))]
}

// randomHeaders draws a browser-like header set for one request.
func randomHeaders(rng *rand.Rand) http.Header {
	h := http.Header{}
	h.Set("User-Agent", pick(rng, userAgents))
	h.Set("Accept-Language", pick(rng, acceptLanguages))
	h.Set("Referer", pick(rng, referers))
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	return h
}
