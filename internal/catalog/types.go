// Package catalog defines the core types shared across the crawling and
// extraction subsystems.
package catalog

import (
	"net/http"
	"time"
)

// CrawlTarget is an immutable pair of a category path and its per-category
// product cap. Targets come from static configuration and are never mutated
// during a run.
type CrawlTarget struct {
	CategoryPath string
	MaxProducts  int
}

// Product is the record assembled for one detail page. During extraction it
// acts as a mutable accumulator; once returned by the extractor it is
// treated as immutable. Numeric fields are kept as strings because the
// origin serves them as free text and downstream sinks persist them as-is;
// an empty string means "unknown".
type Product struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Category    string   `json:"category"`
	URL         string   `json:"url"`
	PhotoURL    string   `json:"photo_url"`
	Composition string   `json:"composition"`
	Tags        []string `json:"tags,omitempty"`
	Weight      string   `json:"weight"`
	Energy      string   `json:"energy_100g"`
	Protein     string   `json:"protein_100g"`
	Fat         string   `json:"fat_100g"`
	Carbs       string   `json:"carbs_100g"`
}

// NutritionFieldCount returns how many of the four nutrition fields are set.
func (p Product) NutritionFieldCount() int {
	n := 0
	for _, v := range []string{p.Energy, p.Protein, p.Fat, p.Carbs} {
		if v != "" {
			n++
		}
	}
	return n
}

// Range bounds a parsed numeric candidate. Values outside the range are
// rejected as noise during extraction.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within the range, inclusive.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Plausible physical ranges used to validate every parsed numeric candidate.
var (
	EnergyRange = Range{Min: 10, Max: 900}   // kcal per 100 g
	MacroRange  = Range{Min: 0, Max: 100}    // grams per 100 g
	PriceRange  = Range{Min: 10, Max: 10000} // rubles
	WeightRange = Range{Min: 10, Max: 2000}  // grams per portion
)

// MaxNameLength caps the extracted product name, in runes.
const MaxNameLength = 200

// FetchOptions carries per-request knobs for the fetch client.
type FetchOptions struct {
	Headers http.Header
	Body    []byte
	// ContentType is set on the request when Body is present.
	ContentType string
}

// FetchResponse is the result of one fetch through the session client.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ParseTask is the job descriptor flowing through the admin queue.
type ParseTask struct {
	TaskID    string    `json:"task_id"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatus represents the lifecycle state of a submitted parse task.
type TaskStatus string

// Task status values reported by the admin API.
const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Stats aggregates completeness counters for one pipeline run.
type Stats struct {
	URLsDiscovered     int `json:"urls_discovered"`
	PagesExtracted     int `json:"pages_extracted"`
	Accepted           int `json:"accepted"`
	Rejected           int `json:"rejected"`
	Discarded          int `json:"discarded"`
	NutritionFull      int `json:"nutrition_4_of_4"`
	NutritionThree     int `json:"nutrition_3_of_4"`
	NutritionPartial   int `json:"nutrition_1_2_of_4"`
	NutritionNone      int `json:"nutrition_0_of_4"`
	WithComposition    int `json:"with_composition"`
	WithoutComposition int `json:"without_composition"`
}

// Observe folds one accepted product into the completeness buckets.
func (s *Stats) Observe(p Product) {
	s.Accepted++
	switch p.NutritionFieldCount() {
	case 4:
		s.NutritionFull++
	case 3:
		s.NutritionThree++
	case 1, 2:
		s.NutritionPartial++
	default:
		s.NutritionNone++
	}
	if p.Composition != "" {
		s.WithComposition++
	} else {
		s.WithoutComposition++
	}
}

// Percent returns part as a percentage of s.Accepted, 0 when nothing was
// accepted.
func (s Stats) Percent(part int) float64 {
	if s.Accepted == 0 {
		return 0
	}
	return float64(part) * 100 / float64(s.Accepted)
}
