package recipe

import "github.com/entrhq/forge-recipe/pkg/types"

func sampleRecipe() *Recipe {
	return &Recipe{
		Domain:  "shop.example.com",
		Flow:    "checkout",
		Version: "v001",
		Workflow: Workflow{
			ID:   "checkout",
			Vars: map[string]interface{}{"query": "socks", "filters": []interface{}{"wool"}},
			Steps: []WorkflowStep{
				{ID: "open", Op: StepGoto, Args: map[string]interface{}{"url": "https://shop.example.com/"}},
				{
					ID: "search", Op: StepActCached, TargetKey: "search_box",
					Expect: []Expectation{{Kind: ExpectURLContains, Value: "/search"}},
				},
				{ID: "price", Op: StepExtract, TargetKey: "price"},
			},
		},
		Actions: map[string]ActionEntry{
			"search_box": {
				Instruction: "type the query into the search box",
				Preferred:   types.ActionRef{Selector: "#q", Description: "Search", Method: "fill", Arguments: []string{"socks"}},
				ObservedAt:  "2025-01-01T00:00:00Z",
			},
		},
		Selectors: map[string]SelectorEntry{
			"price": {Primary: ".price", Fallbacks: []string{"[data-price]"}, Strategy: "css"},
		},
		Policies: map[string]Policy{
			"cheapest": {
				Hard:     []PolicyCondition{{Field: "in_stock", Op: "eq", Value: true}},
				Score:    []PolicyScoreRule{{When: PolicyCondition{Field: "rating", Op: "gte", Value: 4.0}, Add: 1}},
				TieBreak: []string{"price"},
				Pick:     "argmin",
			},
		},
		Fingerprints: map[string]Fingerprint{
			"home": {MustText: []string{"Shop"}, URLContains: "shop.example.com"},
		},
	}
}
