package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// nutritionField identifies one of the four per-100g values.
type nutritionField int

const (
	fieldEnergy nutritionField = iota
	fieldProtein
	fieldFat
	fieldCarbs
)

// nutritionSpec drives all three extraction passes for one field: the
// structured-data property names, the table row keywords, the free-text
// patterns, and the plausible range every candidate must satisfy.
type nutritionSpec struct {
	field        nutritionField
	jsonKeys     []string
	rowKeywords  []string
	textPatterns []*regexp.Regexp
	validRange   catalog.Range
}

// The two observed catalog phrasings drive the pattern order: the value
// either follows the label ("Белки: 12,5") or precedes an inline label
// ("12,5 Белки, г").
var nutritionSpecs = []nutritionSpec{
	{
		field:       fieldEnergy,
		jsonKeys:    []string{"calories", "energy"},
		rowKeywords: []string{"ккал", "калорийност", "энергетическ"},
		textPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*ккал`),
			regexp.MustCompile(`(?i)калорийность[^\d]{0,20}(\d+(?:[.,]\d+)?)`),
		},
		validRange: catalog.EnergyRange,
	},
	{
		field:       fieldProtein,
		jsonKeys:    []string{"proteinContent", "protein"},
		rowKeywords: []string{"белк"},
		textPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)белк[а-яё]*[^\d]{0,20}(\d+(?:[.,]\d+)?)`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*белк`),
		},
		validRange: catalog.MacroRange,
	},
	{
		field:       fieldFat,
		jsonKeys:    []string{"fatContent", "fat"},
		rowKeywords: []string{"жир"},
		textPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)жир[а-яё]*[^\d]{0,20}(\d+(?:[.,]\d+)?)`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*жир`),
		},
		validRange: catalog.MacroRange,
	},
	{
		field:       fieldCarbs,
		jsonKeys:    []string{"carbohydrateContent", "carbohydrates"},
		rowKeywords: []string{"углевод"},
		textPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)углевод[а-яё]*[^\d]{0,20}(\d+(?:[.,]\d+)?)`),
			regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*углевод`),
		},
		validRange: catalog.MacroRange,
	},
}

// fillNutrition runs the three passes in priority order. Each pass only
// fills fields the previous passes left empty.
func fillNutrition(p *page, product *catalog.Product) {
	structuredNutritionPass(p, product)
	tabularNutritionPass(p, product)
	freeTextNutritionPass(p, product)
}

func nutritionValue(product *catalog.Product, f nutritionField) *string {
	switch f {
	case fieldEnergy:
		return &product.Energy
	case fieldProtein:
		return &product.Protein
	case fieldFat:
		return &product.Fat
	default:
		return &product.Carbs
	}
}

// structuredNutritionPass copies properties out of embedded
// NutritionInformation objects in ld+json blocks.
func structuredNutritionPass(p *page, product *catalog.Product) {
	p.doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		walkStructured(payload, product)
	})
}

// walkStructured searches the decoded JSON for nutrition-typed objects.
func walkStructured(node any, product *catalog.Product) {
	switch v := node.(type) {
	case map[string]any:
		if t, _ := v["@type"].(string); t == "NutritionInformation" || t == "Nutrition" {
			applyStructuredObject(v, product)
		}
		for _, child := range v {
			walkStructured(child, product)
		}
	case []any:
		for _, child := range v {
			walkStructured(child, product)
		}
	}
}

func applyStructuredObject(obj map[string]any, product *catalog.Product) {
	for _, spec := range nutritionSpecs {
		slot := nutritionValue(product, spec.field)
		if *slot != "" {
			continue
		}
		for _, key := range spec.jsonKeys {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			if v, ok := structuredNumber(raw, spec.validRange); ok {
				*slot = v
				break
			}
		}
	}
}

// structuredNumber accepts JSON numbers or strings like "150 kcal".
func structuredNumber(raw any, r catalog.Range) (string, bool) {
	switch v := raw.(type) {
	case float64:
		if !r.Contains(v) {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case string:
		m := bareNumberRe.FindStringSubmatch(v)
		if len(m) < 2 {
			return "", false
		}
		return parseNumber(m[1], r)
	default:
		return "", false
	}
}

// tabularNutritionPass scans every table row of two or more cells,
// matching the first cell's text against field keywords and parsing the
// adjacent cell.
func tabularNutritionPass(p *page, product *catalog.Product) {
	p.doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		value := cells.Eq(1).Text()
		for _, spec := range nutritionSpecs {
			slot := nutritionValue(product, spec.field)
			if *slot != "" || !hasAnyKeyword(label, spec.rowKeywords) {
				continue
			}
			if v, ok := firstInRange(bareNumberRe, value, spec.validRange); ok {
				*slot = v
			}
		}
	})
}

// freeTextNutritionPass applies the field patterns first to keyword-bearing
// elements and then, for anything still empty, to the whole page text.
func freeTextNutritionPass(p *page, product *catalog.Product) {
	p.doc.Find("p, li, div, td, span, dd").Each(func(_ int, sel *goquery.Selection) {
		if sel.Children().Length() > 0 {
			return
		}
		text := sel.Text()
		lower := strings.ToLower(text)
		for _, spec := range nutritionSpecs {
			slot := nutritionValue(product, spec.field)
			if *slot != "" || !hasAnyKeyword(lower, spec.rowKeywords) {
				continue
			}
			if v, ok := matchPatterns(spec.textPatterns, text, spec.validRange); ok {
				*slot = v
			}
		}
	})

	// Final whole-page sweep for any field still empty.
	for _, spec := range nutritionSpecs {
		slot := nutritionValue(product, spec.field)
		if *slot != "" {
			continue
		}
		if v, ok := matchPatterns(spec.textPatterns, p.text, spec.validRange); ok {
			*slot = v
		}
	}
}

func matchPatterns(patterns []*regexp.Regexp, text string, r catalog.Range) (string, bool) {
	for _, re := range patterns {
		if v, ok := firstInRange(re, text, r); ok {
			return v, true
		}
	}
	return "", false
}
