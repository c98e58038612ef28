// Package input scrubs raw user text before it is stored or sent to a model.
package input

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Result is the ingest snapshot persisted on a job.
type Result struct {
	Redacted string
	Hash     string
	PIIFlags []string
	Locale   string
}

type piiPattern struct {
	flag        string
	re          *regexp.Regexp
	replacement string
}

// ssn runs before phone so the stricter pattern claims its digits first.
var piiPatterns = []piiPattern{
	{flag: "email", re: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`), replacement: "[EMAIL]"},
	{flag: "ssn", re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), replacement: "[SSN]"},
	{flag: "phone", re: regexp.MustCompile(`(?:\+?\d{1,3}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`), replacement: "[PHONE]"},
}

var defaultLocale = language.AmericanEnglish

// Processor redacts PII and fingerprints the original text.
type Processor struct {
	supported []language.Tag
	matcher   language.Matcher
}

// NewProcessor returns a processor that canonicalises locales against supported.
// An empty list accepts any well-formed tag.
func NewProcessor(supported ...language.Tag) *Processor {
	p := &Processor{}
	if len(supported) > 0 {
		p.supported = append([]language.Tag{defaultLocale}, supported...)
		p.matcher = language.NewMatcher(p.supported)
	}
	return p
}

// Process hashes raw before redaction, then replaces every PII match.
func (p *Processor) Process(raw, locale string) Result {
	sum := sha256.Sum256([]byte(raw))
	redacted := raw
	seen := map[string]struct{}{}
	for _, pat := range piiPatterns {
		if pat.re.MatchString(redacted) {
			seen[pat.flag] = struct{}{}
			redacted = pat.re.ReplaceAllString(redacted, pat.replacement)
		}
	}
	flags := make([]string, 0, len(seen))
	for f := range seen {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	return Result{
		Redacted: strings.TrimSpace(redacted),
		Hash:     hex.EncodeToString(sum[:]),
		PIIFlags: flags,
		Locale:   p.canonicalLocale(locale),
	}
}

func (p *Processor) canonicalLocale(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultLocale.String()
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return defaultLocale.String()
	}
	if p.matcher == nil {
		return tags[0].String()
	}
	_, idx, conf := p.matcher.Match(tags...)
	if conf == language.No {
		return defaultLocale.String()
	}
	return p.supported[idx].String()
}
