// Package classify maps raw target responses to outcome categories and
// fitness weights.
//
// A Classifier must be total (defined for every byte sequence, including the
// empty one), deterministic (identical input yields identical output) and
// free of side effects. The search engine's bin statistics are only
// meaningful under this contract.
package classify

import (
	"bytes"
	"fmt"

	"faultline/internal/model"
)

// Classifier maps one raw trial response to its classification.
type Classifier func(response []byte) model.Classification

// RDP classifies responses of a read-out-protection bypass campaign:
// the target either reports protection still enabled (expected), says
// nothing, times out, or leaks data (success).
func RDP(response []byte) model.Classification {
	switch {
	case bytes.Contains(response, []byte("read-out protection enabled")):
		return model.Classification{Category: model.CategoryExpected, Weight: 0}
	case len(response) == 0:
		return model.Classification{Category: model.CategoryError, Weight: 0}
	case bytes.Contains(response, []byte("Timeout")):
		return model.Classification{Category: model.CategoryTimeout, Weight: -1}
	default:
		return model.Classification{Category: model.CategorySuccess, Weight: 2}
	}
}

// Tokens classifies by substring tokens in the response, first match wins.
// The zero value is not useful; use NewTokens for the default token set.
type Tokens struct {
	Rules    []TokenRule
	Fallback model.Classification
}

// TokenRule assigns a classification to responses containing Token.
type TokenRule struct {
	Token          []byte
	Classification model.Classification
}

// NewTokens mirrors the stock classifier of the original campaign scripts:
// responses self-describe as expected/ok/error/timeout/warning/success.
func NewTokens() Tokens {
	return Tokens{
		Rules: []TokenRule{
			{Token: []byte("expected"), Classification: model.Classification{Category: model.CategoryExpected, Weight: 0}},
			{Token: []byte("ok"), Classification: model.Classification{Category: model.CategoryOK, Weight: 0}},
			{Token: []byte("error"), Classification: model.Classification{Category: model.CategoryError, Weight: 0}},
			{Token: []byte("timeout"), Classification: model.Classification{Category: model.CategoryTimeout, Weight: -1}},
			{Token: []byte("warning"), Classification: model.Classification{Category: model.CategoryWarning, Weight: 0}},
			{Token: []byte("success"), Classification: model.Classification{Category: model.CategorySuccess, Weight: 2}},
		},
		Fallback: model.Classification{Category: model.CategoryOK, Weight: 0},
	}
}

// Classify applies the rules in order.
func (t Tokens) Classify(response []byte) model.Classification {
	for _, rule := range t.Rules {
		if bytes.Contains(response, rule.Token) {
			return rule.Classification
		}
	}
	return t.Fallback
}

// ByName resolves a built-in classifier for configuration surfaces.
func ByName(name string) (Classifier, error) {
	switch name {
	case "", "tokens":
		return NewTokens().Classify, nil
	case "rdp":
		return RDP, nil
	default:
		return nil, fmt.Errorf("classify: unknown classifier: %s", name)
	}
}
