package document

import (
	"sort"
	"strings"
	"unicode"

	"CCNLMonitor/internal/domain"
)

const (
	corroborationStep = 0.1
	corroborationCap  = 0.2
	verifiedSources   = 2
	verifiedThreshold = 0.7
)

var stopwords = map[string]struct{}{
	"il": {}, "lo": {}, "la": {}, "i": {}, "gli": {}, "le": {}, "un": {}, "uno": {}, "una": {},
	"di": {}, "del": {}, "dello": {}, "della": {}, "dei": {}, "degli": {}, "delle": {},
	"a": {}, "al": {}, "allo": {}, "alla": {}, "ai": {}, "agli": {}, "alle": {},
	"da": {}, "dal": {}, "dalla": {}, "dai": {}, "in": {}, "nel": {}, "nella": {}, "nei": {}, "nelle": {},
	"con": {}, "su": {}, "sul": {}, "sulla": {}, "per": {}, "tra": {}, "fra": {},
	"e": {}, "ed": {}, "o": {}, "ma": {}, "che": {}, "non": {}, "come": {}, "anche": {}, "sono": {},
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "this": {}, "that": {}, "are": {}, "was": {},
}

// CrossVerify blends the confidence of events about one agreement with a bonus
// for every additional distinct source.
func (p *Processor) CrossVerify(events []domain.UpdateEvent) domain.CrossVerification {
	return CrossVerify(events)
}

// CrossVerify is the stateless form of Processor.CrossVerify.
func CrossVerify(events []domain.UpdateEvent) domain.CrossVerification {
	if len(events) == 0 {
		return domain.CrossVerification{}
	}

	sources := map[string]struct{}{}
	var total float64
	for _, ev := range events {
		sources[ev.Source] = struct{}{}
		total += ev.Confidence
	}

	bonus := corroborationStep * float64(len(sources)-1)
	if bonus > corroborationCap {
		bonus = corroborationCap
	}
	confidence := total/float64(len(events)) + bonus
	if confidence > 1 {
		confidence = 1
	}

	return domain.CrossVerification{
		Verified:       len(sources) >= verifiedSources && confidence >= verifiedThreshold,
		Confidence:     confidence,
		Sources:        len(sources),
		CommonKeywords: commonKeywords(events),
	}
}

func commonKeywords(events []domain.UpdateEvent) []string {
	var common map[string]struct{}
	for _, ev := range events {
		words := titleWords(ev.Title)
		if common == nil {
			common = words
			continue
		}
		for w := range common {
			if _, ok := words[w]; !ok {
				delete(common, w)
			}
		}
	}
	return sortedSet(common)
}

func titleWords(title string) map[string]struct{} {
	words := map[string]struct{}{}
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range fields {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
