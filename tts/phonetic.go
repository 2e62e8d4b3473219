package tts

import (
	"context"
	"regexp"
	"strings"

	"github.com/onnwee/chat-tender/chat"
)

// usernamePhonetics maps usernames the synthesizer mangles to a spelling it
// pronounces correctly. Keys are lowercased usernames.
var usernamePhonetics = map[string]string{
	"7gh0sty":          "ghosty",
	"isdbest":          "is-dee-best",
	"sk4963":           "OxMom",
	"gaggablagblag":    "Gagga-Blag-Blag",
	"viennagaymerbear": "Gaymer-Bear",
	"ekamy":            "eckahhmee",
	"vtleavs":          "v t levs",
	"impicusmaximus":   "Impicus",
	"lonkwore":         "lonk",
	"yahya11419":       "yah yah",
	"areswyler":        "aireese",
	"roxanepigiste":    "RocksAnnePeegeest",
	"alphastar592004":  "AlphaStar",
	"derpidyderp":      "Derpity Derp",
}

// wordPhonetics maps in-text words to pronounceable replacements.
var wordPhonetics = map[string]string{
	"uwu": "ooh Wu",
}

// PhoneticFilter rewrites the speaker name and in-text mentions so the
// synthesizer pronounces them the way the community does.
type PhoneticFilter struct {
	speakers map[string]string
	rules    []phoneticRule
}

type phoneticRule struct {
	re   *regexp.Regexp
	repl string
}

func NewPhoneticFilter() *PhoneticFilter {
	f := &PhoneticFilter{speakers: usernamePhonetics}
	for from, to := range usernamePhonetics {
		f.rules = append(f.rules, phoneticRule{
			re:   regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
			repl: to,
		})
	}
	for from, to := range wordPhonetics {
		f.rules = append(f.rules, phoneticRule{
			re:   regexp.MustCompile(`(?i)` + regexp.QuoteMeta(from)),
			repl: to,
		})
	}
	return f
}

func (f *PhoneticFilter) Apply(_ context.Context, _ chat.Message, r Result) (Result, bool) {
	if repl, ok := f.speakers[strings.ToLower(r.Speaker)]; ok {
		r.Speaker = repl
	}
	for _, rule := range f.rules {
		r.Text = rule.re.ReplaceAllString(r.Text, rule.repl)
	}
	return r, true
}
