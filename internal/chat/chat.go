// Package chat implements the keyword responder behind the assistant
// endpoint. It is a stand-in for a real NLP model: literal case-insensitive
// substring matching against an ordered rule list, nothing fuzzier.
package chat

import (
	"strings"

	"github.com/aadhira3355/BluePulse/internal/config"
)

type Rule struct {
	Keyword  string
	Response string
}

type Reply struct {
	Text       string
	Confidence float64
}

// Responder maps free text to a canned response. Rules are evaluated in
// order; the first keyword contained in the lowercased message wins.
type Responder struct {
	Rules      []Rule
	Default    string
	Confidence float64
}

// FromConfig builds a responder from the configured rule list.
func FromConfig(cfg *config.Config) *Responder {
	r := &Responder{
		Default:    cfg.Chat.Default,
		Confidence: cfg.Chat.Confidence,
	}
	for _, rule := range cfg.Chat.Rules {
		r.Rules = append(r.Rules, Rule{Keyword: rule.Keyword, Response: rule.Response})
	}
	return r
}

// Respond returns the response for the first matching rule, or the default
// response when nothing matches. Confidence is a fixed reported constant.
func (r *Responder) Respond(message string) Reply {
	lowered := strings.ToLower(message)
	text := r.Default
	for _, rule := range r.Rules {
		if strings.Contains(lowered, strings.ToLower(rule.Keyword)) {
			text = rule.Response
			break
		}
	}
	return Reply{Text: text, Confidence: r.Confidence}
}
