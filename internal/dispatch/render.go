package dispatch

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"figtracker/internal/model"
)

// priceSpreadSuspicionFactor marks a cross-store price spread as
// suspicious; above it the listings probably differ (reissue, scale
// variant) despite matching.
const priceSpreadSuspicionFactor = 2.0

var changeHeadlines = map[model.ChangeType]string{
	model.ChangeNew:     "🆕 New listing",
	model.ChangeRestock: "🔄 Back in stock",
	model.ChangeSoldOut: "❌ Sold out",
	model.ChangePrice:   "💰 Price change",
}

var changeNouns = map[model.ChangeType]string{
	model.ChangeNew:     "new listings",
	model.ChangeRestock: "restocks",
	model.ChangeSoldOut: "sold out",
	model.ChangePrice:   "price changes",
}

// formatPrice renders a won amount with thousands grouping, "?" when
// the price is unknown.
func formatPrice(price *int64) string {
	if price == nil {
		return "?"
	}
	s := strconv.FormatInt(*price, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "₩" + b.String()
	if neg {
		out = "-" + out
	}
	return out
}

// renderAlert builds the HTML message body for one outbox row,
// optionally followed by a cross-store price block. matchedTerm, when
// non-empty, is the watch keyword that earned the recipient this alert
// and is shown as the first line.
func renderAlert(a model.PendingAlert, matchedTerm string, peers []model.PeerPrice, suspicious bool) string {
	var b strings.Builder

	if matchedTerm != "" {
		b.WriteString("🔔 ")
		b.WriteString(html.EscapeString(matchedTerm))
		b.WriteString("\n")
	}
	b.WriteString(changeHeadlines[a.ChangeType])
	b.WriteString("\n\n")

	b.WriteString("<b>")
	b.WriteString(html.EscapeString(a.Name))
	b.WriteString("</b>\n")
	b.WriteString(fmt.Sprintf("Store: %s\n", html.EscapeString(a.Site)))

	if a.ChangeType == model.ChangePrice {
		b.WriteString(fmt.Sprintf("Price: %s\n", renderPriceChange(a.OldValue, a.NewValue)))
	} else if a.Price != nil {
		b.WriteString(fmt.Sprintf("Price: %s\n", formatPrice(a.Price)))
	}

	if a.URL != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\">View listing</a>\n", a.URL))
	}

	if len(peers) > 0 {
		b.WriteString("\n<b>Other stores:</b>\n")
		for _, p := range peers {
			line := fmt.Sprintf("• %s: %s", html.EscapeString(p.Site), formatPrice(p.Price))
			if p.Status == model.StatusSoldOut {
				line += " (sold out)"
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
		if suspicious {
			b.WriteString("⚠️ Large price spread; these may not be the same item.\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// renderPriceChange formats "old → new (+12.3%)" from the stringified
// prices stored on the alert row.
func renderPriceChange(oldValue, newValue string) string {
	oldP, errOld := strconv.ParseInt(oldValue, 10, 64)
	newP, errNew := strconv.ParseInt(newValue, 10, 64)
	if errOld != nil || errNew != nil {
		return fmt.Sprintf("%s → %s", oldValue, newValue)
	}

	out := fmt.Sprintf("%s → %s", formatPrice(&oldP), formatPrice(&newP))
	if oldP > 0 {
		pct := float64(newP-oldP) / float64(oldP) * 100
		out += fmt.Sprintf(" (%+.1f%%)", pct)
	}
	return out
}

// renderBatchSummary is the header message sent before a large batch.
func renderBatchSummary(site string, counts map[model.ChangeType]int) string {
	total := 0
	for _, n := range counts {
		total += n
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 %d updates from %s:\n", total, html.EscapeString(site)))
	for _, t := range []model.ChangeType{model.ChangeNew, model.ChangeRestock, model.ChangePrice, model.ChangeSoldOut} {
		if counts[t] > 0 {
			b.WriteString(fmt.Sprintf("• %d %s\n", counts[t], changeNouns[t]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderStaleSummary replaces an aged backlog with one digest message.
func renderStaleSummary(counts map[model.ChangeType]int, dashboardURL string) string {
	total := 0
	for _, n := range counts {
		total += n
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 %d updates accumulated while the notifier was away:\n", total))
	for _, t := range []model.ChangeType{model.ChangeNew, model.ChangeRestock, model.ChangePrice, model.ChangeSoldOut} {
		if counts[t] > 0 {
			b.WriteString(fmt.Sprintf("• %d %s\n", counts[t], changeNouns[t]))
		}
	}
	if dashboardURL != "" {
		b.WriteString(fmt.Sprintf("\n<a href=\"%s\">See everything</a>", dashboardURL))
	}
	return strings.TrimRight(b.String(), "\n")
}

// firstMatchingTerm returns the earliest of the subscriber's keywords
// that occurs in the alert's name or its extracted series/character,
// and whether the subscriber should receive the alert at all. An empty
// term list matches everything without a keyword.
func firstMatchingTerm(terms []string, name string, attrs model.Attributes) (string, bool) {
	if len(terms) == 0 {
		return "", true
	}
	haystacks := []string{
		strings.ToLower(name),
		strings.ToLower(attrs.Series),
		strings.ToLower(attrs.Character),
	}
	for _, term := range terms {
		for _, h := range haystacks {
			if h != "" && strings.Contains(h, term) {
				return term, true
			}
		}
	}
	return "", false
}
