package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// page bundles the parsed document with precomputed views the strategies
// share: the raw markup and the flattened visible text.
type page struct {
	url  string
	raw  string
	text string
	doc  *goquery.Document
}

func newPage(url, raw string, doc *goquery.Document) *page {
	return &page{
		url:  url,
		raw:  raw,
		text: doc.Text(),
		doc:  doc,
	}
}

// strategy is a pure function trying to produce one field value from the
// page. Strategies run in order; the first in-range hit wins and later
// strategies never override an already-filled field.
type strategy func(p *page) (string, bool)

// runChain evaluates strategies in order with early exit on the first hit.
func runChain(p *page, chain []strategy) string {
	for _, s := range chain {
		if v, ok := s(p); ok {
			return v
		}
	}
	return ""
}

// parseNumber normalizes a decimal-comma candidate and validates it
// against the field's plausible range. Out-of-range values are noise.
func parseNumber(raw string, r catalog.Range) (string, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", "."), 64)
	if err != nil || !r.Contains(v) {
		return "", false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

// firstInRange applies re to text and returns the first submatch that
// parses inside r, skipping out-of-range candidates and continuing the
// scan.
func firstInRange(re *regexp.Regexp, text string, r catalog.Range) (string, bool) {
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		if v, ok := parseNumber(m[1], r); ok {
			return v, true
		}
	}
	return "", false
}

// --- Name ---

var nameSelectors = []string{
	"h1",
	".product-title",
	".item-title",
	".product-name",
	"[itemprop=name]",
}

func nameChain() []strategy {
	out := make([]strategy, 0, len(nameSelectors))
	for _, sel := range nameSelectors {
		selector := sel
		out = append(out, func(p *page) (string, bool) {
			text := strings.TrimSpace(p.doc.Find(selector).First().Text())
			if text == "" {
				return "", false
			}
			return truncateRunes(text, catalog.MaxNameLength), true
		})
	}
	return out
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// --- Price ---

var (
	bareNumberRe    = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	jsonPriceRe     = regexp.MustCompile(`(?i)"price"\s*:\s*"?(\d+(?:[.,]\d+)?)`)
	currencyPriceRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:руб|₽)`)
	labeledPriceRe  = regexp.MustCompile(`(?i)цена[^\d]{0,10}(\d+(?:[.,]\d+)?)`)
)

func priceChain() []strategy {
	return []strategy{
		priceFromElements,
		priceFromEmbeddedJSON,
		priceFromFreeText,
	}
}

// priceFromElements scans price-like markup for an embedded number in the
// currency range.
func priceFromElements(p *page) (string, bool) {
	var price string
	p.doc.Find(`.price, .product-price, [class*="price"], [itemprop=price]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if v, ok := firstInRange(bareNumberRe, sel.Text(), catalog.PriceRange); ok {
			price = v
			return false
		}
		if content, ok := sel.Attr("content"); ok {
			if v, ok := parseNumber(content, catalog.PriceRange); ok {
				price = v
				return false
			}
		}
		return true
	})
	return price, price != ""
}

// priceFromEmbeddedJSON pattern-matches "price":"199" style blobs in the
// raw markup.
func priceFromEmbeddedJSON(p *page) (string, bool) {
	return firstInRange(jsonPriceRe, p.raw, catalog.PriceRange)
}

// priceFromFreeText falls back to "N руб" / "N ₽" / "цена: N" phrasings in
// the visible page text.
func priceFromFreeText(p *page) (string, bool) {
	if v, ok := firstInRange(currencyPriceRe, p.text, catalog.PriceRange); ok {
		return v, true
	}
	return firstInRange(labeledPriceRe, p.text, catalog.PriceRange)
}

// --- Photo ---

var (
	photoKeywords   = []string{"product", "goods", "catalog", "tovar", "item", "upload"}
	photoStopwords  = []string{"icon", "logo", "banner", "sprite", "placeholder", "svg"}
	photoMinSize    = 50
	photoFallbackSz = 100
)

func photoChain() []strategy {
	return []strategy{photoByKeyword, photoByDimensions}
}

// photoByKeyword picks the first image whose URL or alt text mentions a
// catalog keyword, rejecting icon-like assets and anything declared below
// 50x50.
func photoByKeyword(p *page) (string, bool) {
	var photo string
	p.doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := imageSource(sel)
		if src == "" || hasAnyKeyword(src, photoStopwords) {
			return true
		}
		alt, _ := sel.Attr("alt")
		if !hasAnyKeyword(src, photoKeywords) && !hasAnyKeyword(alt, photoKeywords) {
			return true
		}
		if w, h, declared := declaredSize(sel); declared && (w < photoMinSize || h < photoMinSize) {
			return true
		}
		photo = resolveRef(p.url, src)
		return photo == ""
	})
	return photo, photo != ""
}

// photoByDimensions is the generic fallback: any non-excluded image that
// explicitly declares itself at least 100x100.
func photoByDimensions(p *page) (string, bool) {
	var photo string
	p.doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src := imageSource(sel)
		if src == "" || hasAnyKeyword(src, photoStopwords) {
			return true
		}
		w, h, declared := declaredSize(sel)
		if !declared || w < photoFallbackSz || h < photoFallbackSz {
			return true
		}
		photo = resolveRef(p.url, src)
		return photo == ""
	})
	return photo, photo != ""
}

func imageSource(sel *goquery.Selection) string {
	if src, ok := sel.Attr("src"); ok && src != "" {
		return src
	}
	src, _ := sel.Attr("data-src")
	return src
}

func declaredSize(sel *goquery.Selection) (int, int, bool) {
	w, wok := sel.Attr("width")
	h, hok := sel.Attr("height")
	if !wok || !hok {
		return 0, 0, false
	}
	width, werr := strconv.Atoi(strings.TrimSpace(w))
	height, herr := strconv.Atoi(strings.TrimSpace(h))
	if werr != nil || herr != nil {
		return 0, 0, false
	}
	return width, height, true
}

func hasAnyKeyword(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// --- Composition ---

var compositionNoise = []string{
	"корзин", "доставк", "каталог", "меню", "подробнее", "акци", "скидк", "javascript",
}

const (
	compositionKeyword = "состав"
	compositionMaxLen  = 1000
)

func compositionChain() []strategy {
	return []strategy{compositionFromBlocks}
}

// compositionFromBlocks scans block-level text for the composition
// keyword, preferring the candidate that begins with it.
func compositionFromBlocks(p *page) (string, bool) {
	var candidates []string
	p.doc.Find("p, li, div, td, dd, span").Each(func(_ int, sel *goquery.Selection) {
		// Skip containers; the leaf repeats in the parent's text.
		if sel.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(sel.Text())
		lower := strings.ToLower(text)
		if !strings.Contains(lower, compositionKeyword) {
			return
		}
		if hasAnyKeyword(lower, compositionNoise) {
			return
		}
		candidates = append(candidates, text)
	})

	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), compositionKeyword) {
			return c, true
		}
	}
	for _, c := range candidates {
		if len([]rune(c)) <= compositionMaxLen {
			return c, true
		}
	}
	return "", false
}

// resolveRef makes ref absolute against the page URL.
func resolveRef(pageURL, ref string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	resolved, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	return resolved.String()
}

// --- Portion weight ---

var weightRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:грамм|гр|г)(?:[^\p{L}]|$)`)

func weightChain() []strategy {
	return []strategy{func(p *page) (string, bool) {
		return firstInRange(weightRe, p.text, catalog.WeightRange)
	}}
}
