package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

const systemPrompt = `You are a browser automation planner for retail websites.
You receive a task, the current page URL, and a text excerpt of the visible page.
Respond with a single JSON object and nothing else:

{
  "steps": [
    {"action": "navigate", "value": "<url>"},
    {"action": "click", "selector": "<css selector>"},
    {"action": "type", "selector": "<css selector>", "value": "<text>"},
    {"action": "submit", "selector": "<css selector>"},
    {"action": "wait", "value": "<milliseconds>"}
  ],
  "outcome": "acted" | "not_found" | "blocked",
  "detail": "<short explanation>"
}

Rules:
- Plan only from what the page excerpt shows. Never invent selectors for elements the excerpt does not suggest exist.
- Use "not_found" when the requested item or control clearly does not exist on this site.
- Use "blocked" when a CAPTCHA, bot interstitial, or hard error prevents acting.
- Prefer "Add to Cart" over "Buy Now". Decline protection plans, warranties, memberships, and suggested add-ons.
- Set item quantity with the page's quantity control before adding to cart.
- Select required product variations (size, color) before adding to cart.
- Never use the site search box for anything other than finding products.`

// siteGuidance carries per-retailer quirks appended to the task prompt.
// Keys are the first label of the site key ("amazon" for amazon.com).
var siteGuidance = map[string]string{
	"amazon": `- Use the search bar at the top of the page.
- Ignore sponsored results when a regular result matches.
- Use "Add to Cart", not "Buy Now".
- Decline protection plans and additional offerings.
- Set quantity with the dropdown before adding to cart.
- Sign-in is multi-step: email first, then password on the next page.`,
	"walmart": `- Use the search bar at the top of the page.
- Prefer items sold and shipped by Walmart directly.
- Decline protection plans and warranties.
- Skip pickup-versus-delivery prompts.
- Adjust quantity with the "+" control or the quantity field.`,
	"target": `- Use the search bar at the top of the page.
- Prefer items sold and shipped by Target.
- Decline protection plans and warranties.
- Set quantity with the selector before adding to cart.`,
	"bestbuy": `- Use the search bar at the top of the page.
- Decline protection plans and memberships.
- Skip store-pickup-versus-shipping prompts.
- Update the quantity selector before adding to cart.`,
	"ebay": `- Use the search bar at the top of the page.
- Filter for "Buy It Now" items to avoid auctions.
- Select item variations from the dropdowns before adding to cart.
- Update the quantity field before clicking "Add to cart".`,
	"newegg": `- Use the search bar at the top of the page.
- Prefer items sold and shipped by Newegg.
- Skip combo deals and suggested add-ons.
- Deselect any auto-added extras the task did not ask for.`,
}

const genericGuidance = `- Use the search bar at the top of the page to find each item.
- Try alternative search terms when no exact match appears.
- Update the quantity field before adding to cart.
- Decline extra options and warranties.
- Select product variations before adding to cart.`

// guidanceFor returns the retailer-specific hints for a site key.
func guidanceFor(siteKey string) string {
	label := siteKey
	if i := strings.Index(label, "."); i >= 0 {
		label = label[:i]
	}
	if g, ok := siteGuidance[strings.ToLower(label)]; ok {
		return g
	}
	return genericGuidance
}

// renderIntent builds the user prompt for one intent.
func renderIntent(intent schemas.Intent) string {
	var b strings.Builder

	switch intent.Kind {
	case schemas.IntentLogin:
		b.WriteString("Task: log in to the site with the provided credentials.\n")
		if intent.Credentials.Provided() {
			fmt.Fprintf(&b, "Username: %s\nPassword: %s\n", intent.Credentials.Username, intent.Credentials.Password)
		}
	case schemas.IntentAddToCart:
		fmt.Fprintf(&b, "Task: add this item to the shopping cart.\nItem: %s\n", intent.Item.Name)
		if intent.Item.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", intent.Item.Description)
		}
		fmt.Fprintf(&b, "Quantity: %d\n", intent.Item.Quantity)
		if len(intent.Item.Options) > 0 {
			b.WriteString("Required options:\n")
			keys := make([]string, 0, len(intent.Item.Options))
			for k := range intent.Item.Options {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "  %s: %s\n", k, intent.Item.Options[k])
			}
		}
	}
	if intent.Task != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", intent.Task)
	}

	fmt.Fprintf(&b, "\nSite: %s\n", intent.Site)
	fmt.Fprintf(&b, "Current URL: %s\n", intent.PageURL)
	b.WriteString("\nSite guidance:\n")
	b.WriteString(guidanceFor(intent.Site))
	b.WriteString("\n\nVisible page excerpt:\n")
	b.WriteString(intent.PageExcerpt)
	return b.String()
}
