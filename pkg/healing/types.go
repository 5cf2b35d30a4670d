package healing

import (
	"net/url"
	"strings"
	"time"

	"github.com/entrhq/forge-recipe/pkg/types"
)

const (
	// DefaultMinConfidence is the lookup threshold used when callers have no opinion.
	DefaultMinConfidence = 0.6

	// DefaultPruneConfidence is the floor below which Prune drops records.
	DefaultPruneConfidence = 0.3
)

// Method records how a heal was discovered.
type Method string

const (
	MethodRetry            Method = "retry"
	MethodObserveRefresh   Method = "observe_refresh"
	MethodSelectorFallback Method = "selector_fallback"
	MethodAuthoringPatch   Method = "authoring_patch"
	MethodLLM              Method = "llm"
	MethodCanvas           Method = "canvas"
	MethodManual           Method = "manual"
	MethodMigration        Method = "migration"
)

// Evidence justifies a healing record.
type Evidence struct {
	OriginalSelector string    `json:"originalSelector"`
	HealedSelector   string    `json:"healedSelector"`
	DOMContext       string    `json:"domContext,omitempty"`
	PageTitle        string    `json:"pageTitle,omitempty"`
	PageURL          string    `json:"pageUrl,omitempty"`
	HealingMethod    Method    `json:"healingMethod"`
	Timestamp        time.Time `json:"timestamp"`
}

// Record is one remembered binding for a target on a page.
type Record struct {
	TargetKey     string          `json:"targetKey"`
	URL           string          `json:"url"`
	Domain        string          `json:"domain"`
	Action        types.ActionRef `json:"action"`
	SuccessCount  int             `json:"successCount"`
	FailCount     int             `json:"failCount"`
	Confidence    float64         `json:"confidence"`
	LastSuccessAt time.Time       `json:"lastSuccessAt"`
	LastFailAt    *time.Time      `json:"lastFailAt,omitempty"`
	Evidence      Evidence        `json:"evidence"`
}

// recompute derives Confidence from the counts. It is the only writer of Confidence.
func (r *Record) recompute() {
	total := r.SuccessCount + r.FailCount
	if total <= 0 {
		r.Confidence = 0
		return
	}
	r.Confidence = float64(r.SuccessCount) / float64(total)
}

func (r *Record) clone() *Record {
	out := *r
	out.Action = r.Action.Clone()
	if r.LastFailAt != nil {
		t := *r.LastFailAt
		out.LastFailAt = &t
	}
	return &out
}

// Stats summarizes the store for reporting.
type Stats struct {
	TotalRecords      int            `json:"totalRecords"`
	AverageConfidence float64        `json:"averageConfidence"`
	Lookups           int            `json:"lookups"`
	Hits              int            `json:"hits"`
	HitRate           float64        `json:"hitRate"`
	ByDomain          map[string]int `json:"byDomain"`
}

// DomainOf returns the lowercased host of rawURL without a leading "www.".
// Unparseable input yields an empty domain.
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
