package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/blakazulu/search-mcp/internal/embed"
)

// Intent categories recognized by the classifier.
type IntentCategory string

const (
	IntentFunction IntentCategory = "FUNCTION"
	IntentClass    IntentCategory = "CLASS"
	IntentError    IntentCategory = "ERROR"
	IntentDatabase IntentCategory = "DATABASE"
	IntentAPI      IntentCategory = "API"
	IntentAuth     IntentCategory = "AUTH"
	IntentTest     IntentCategory = "TEST"
	IntentConfig   IntentCategory = "CONFIG"
)

// Intent is one detected category with its confidence.
type Intent struct {
	Category   IntentCategory
	Confidence float64 // in [0,1]
}

// Classifier defaults.
const (
	DefaultMaxIntents    = 3
	DefaultMinConfidence = 0.2
)

// intentSignals holds the keyword and regex evidence per category.
// Keywords score on token match; patterns catch phrasings tokens miss.
type intentSignals struct {
	keywords map[string]float64
	patterns []*regexp.Regexp
}

var intentRules = map[IntentCategory]intentSignals{
	IntentFunction: {
		keywords: map[string]float64{
			"function": 1.0, "func": 1.0, "method": 1.0, "def": 0.8,
			"call": 0.5, "invoke": 0.6, "implementation": 0.5, "fn": 0.8,
			"lambda": 0.7, "callback": 0.6,
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bhow (is|does) \w+ (work|implemented)\b`),
			regexp.MustCompile(`\w+\(\)`),
		},
	},
	IntentClass: {
		keywords: map[string]float64{
			"class": 1.0, "struct": 1.0, "interface": 0.9, "type": 0.7,
			"model": 0.6, "object": 0.5, "trait": 0.8, "enum": 0.8,
			"inherit": 0.6, "extends": 0.6,
		},
	},
	IntentError: {
		keywords: map[string]float64{
			"error": 1.0, "err": 0.9, "exception": 1.0, "panic": 0.9,
			"fail": 0.7, "failure": 0.7, "crash": 0.8, "bug": 0.6,
			"handle": 0.4, "recover": 0.6, "retry": 0.5,
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwhy (does|is) .+ (fail|crash|break)`),
		},
	},
	IntentDatabase: {
		keywords: map[string]float64{
			"database": 1.0, "db": 0.9, "sql": 1.0, "query": 0.8,
			"table": 0.7, "schema": 0.7, "migration": 0.8, "transaction": 0.8,
			"orm": 0.8, "sqlite": 0.9, "postgres": 0.9, "mysql": 0.9,
			"insert": 0.5, "select": 0.5,
		},
	},
	IntentAPI: {
		keywords: map[string]float64{
			"api": 1.0, "endpoint": 1.0, "route": 0.8, "rest": 0.8,
			"http": 0.8, "request": 0.6, "response": 0.6, "handler": 0.5,
			"grpc": 0.9, "graphql": 0.9, "webhook": 0.8, "server": 0.4,
		},
	},
	IntentAuth: {
		keywords: map[string]float64{
			"auth": 1.0, "authentication": 1.0, "authorization": 1.0,
			"login": 0.9, "logout": 0.8, "token": 0.7, "jwt": 0.9,
			"oauth": 0.9, "password": 0.8, "session": 0.6, "permission": 0.7,
			"credential": 0.8, "signin": 0.8,
		},
	},
	IntentTest: {
		keywords: map[string]float64{
			"test": 1.0, "spec": 0.7, "mock": 0.8, "stub": 0.7,
			"assert": 0.8, "fixture": 0.8, "coverage": 0.8, "unittest": 1.0,
			"integration": 0.5, "benchmark": 0.7,
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\btest(s|ing|ed)? for\b`),
		},
	},
	IntentConfig: {
		keywords: map[string]float64{
			"config": 1.0, "configuration": 1.0, "settings": 0.9,
			"options": 0.6, "env": 0.7, "environment": 0.6, "yaml": 0.7,
			"toml": 0.7, "flag": 0.6, "parameter": 0.5, "default": 0.4,
		},
	},
}

// IntentClassifier detects query intent from keywords and patterns.
type IntentClassifier struct {
	maxIntents    int
	minConfidence float64
}

// NewIntentClassifier creates a classifier with default thresholds.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		maxIntents:    DefaultMaxIntents,
		minConfidence: DefaultMinConfidence,
	}
}

// DetectIntent classifies the query, returning up to maxIntents
// categories sorted by confidence, each above minConfidence.
// Tokenization splits CamelCase and snake_case, so "getUserAuth"
// contributes "user" and "auth" evidence.
func (c *IntentClassifier) DetectIntent(query string) []Intent {
	tokens := embed.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}
	lower := strings.ToLower(query)

	var intents []Intent
	for category, signals := range intentRules {
		var score float64
		for kw, w := range signals.keywords {
			if _, hit := tokenSet[kw]; hit {
				score += w
			}
		}
		for _, p := range signals.patterns {
			if p.MatchString(lower) {
				score += 1.0
			}
		}
		if score == 0 {
			continue
		}
		// Scale so a single strong keyword clears the threshold but
		// confidence still grows with corroborating evidence.
		confidence := score / (score + 1.5)
		if confidence < c.minConfidence {
			continue
		}
		intents = append(intents, Intent{Category: category, Confidence: confidence})
	}

	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Confidence != intents[j].Confidence {
			return intents[i].Confidence > intents[j].Confidence
		}
		return intents[i].Category < intents[j].Category
	})
	if len(intents) > c.maxIntents {
		intents = intents[:c.maxIntents]
	}
	return intents
}
