package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cartPage = `<html><body>
<nav><a href="/">Home</a><a href="/help">Help</a></nav>
<main>
  <input type="hidden" name="csrf" value="t">
  <input type="text" name="coupon" placeholder="Coupon code">
  <button id="apply-coupon">Apply</button>
  <button data-testid="checkout-btn">Proceed to checkout</button>
  <div role="button" aria-label="Remove item">x</div>
  <select name="shipping"><option>Standard</option></select>
  <button id="1bad id">Odd</button>
</main>
</body></html>`

func TestFindCandidatesRanksByInstruction(t *testing.T) {
	got, err := FindCandidates(cartPage, "Click the checkout button", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	assert.Equal(t, `[data-testid="checkout-btn"]`, got[0].Action.Selector)
	assert.Equal(t, "click", got[0].Action.Method)
	assert.Equal(t, "Proceed to checkout", got[0].Action.Description)
}

func TestFindCandidatesSelectorPreference(t *testing.T) {
	got, err := FindCandidates(cartPage, "", 0)
	require.NoError(t, err)

	selectors := make(map[string]string)
	for _, c := range got {
		selectors[c.Action.Selector] = c.Action.Method
	}

	assert.Equal(t, "fill", selectors[`input[name="coupon"]`])
	assert.Equal(t, "click", selectors["#apply-coupon"])
	assert.Equal(t, "click", selectors[`div[aria-label="Remove item"]`])
	assert.Equal(t, "select", selectors[`select[name="shipping"]`])
	assert.Equal(t, "click", selectors[`[id="1bad id"]`])
	assert.Equal(t, "click", selectors[`a:has-text("Home")`])
	assert.NotContains(t, selectors, `input[name="csrf"]`, "hidden inputs are not interactive")
}

func TestFindCandidatesNoMatch(t *testing.T) {
	got, err := FindCandidates(cartPage, "download invoice pdf", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindCandidatesLimit(t *testing.T) {
	got, err := FindCandidates(cartPage, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
