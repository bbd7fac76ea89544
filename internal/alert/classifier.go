// Package alert contains the alert classifier and the bounded global alert
// log. Classification is a pure function from a product and the current
// settings to at most one alert category; the log assigns the strictly
// increasing alert IDs and owns oldest-first eviction.
package alert

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// foldCaser performs Unicode case folding for keyword matching. Folding is
// stateless, so a single caser is shared.
var foldCaser = cases.Fold()

// Classify maps a product to at most one alert category and a human-readable
// message. It is pure and deterministic: no side effects, same output for the
// same inputs.
//
// Rules are evaluated in fixed priority order, first match wins:
//  1. super:       discount >= settings.SuperThreshold
//  2. electronics: product is on the electronics shelf and
//     discount >= settings.ElectronicsThreshold
//  3. best:        discount >= settings.BestThreshold
//  4. keyword:     title contains any configured keyword (case-folded)
//
// The boolean result reports whether any rule matched.
func Classify(p domain.Product, settings domain.Settings) (domain.AlertCategory, string, bool) {
	switch {
	case p.Discount >= settings.SuperThreshold:
		return domain.CategorySuper, fmt.Sprintf("Super deal: %d%% off", p.Discount), true
	case p.Category == domain.CategoryElectronics && p.Discount >= settings.ElectronicsThreshold:
		return domain.CategoryElectronics, fmt.Sprintf("Electronics deal: %d%% off", p.Discount), true
	case p.Discount >= settings.BestThreshold:
		return domain.CategoryBest, fmt.Sprintf("Best deal: %d%% off", p.Discount), true
	}
	if kw, ok := matchKeyword(p.Title, settings.Keywords); ok {
		return domain.CategoryKeyword, fmt.Sprintf("Keyword match %q: %d%% off", kw, p.Discount), true
	}
	return "", "", false
}

// matchKeyword reports the first configured keyword contained in title,
// compared under Unicode case folding. Blank keywords never match.
func matchKeyword(title string, keywords []string) (string, bool) {
	if len(keywords) == 0 {
		return "", false
	}
	folded := foldCaser.String(title)
	for _, kw := range keywords {
		trimmed := strings.TrimSpace(kw)
		if trimmed == "" {
			continue
		}
		if strings.Contains(folded, foldCaser.String(trimmed)) {
			return trimmed, true
		}
	}
	return "", false
}
