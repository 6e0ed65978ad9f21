package agent

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ConfirmationClassifier decides whether a user message is an explicit
// go-ahead for a previously proposed action. Anything it cannot place is
// a no: the policy fails closed.
type ConfirmationClassifier interface {
	IsAffirmative(message string) bool
}

// KeywordClassifier matches short affirmative phrases against a keyword
// set chosen by detected language. It is deliberately conservative; a
// missed "yes" costs the user one extra confirmation, a false positive
// sends an email nobody approved.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

var swedishAffirmatives = []string{
	"ja",
	"japp",
	"jajamän",
	"ja tack",
	"absolut",
	"kör",
	"kör på",
	"gör det",
	"skicka",
	"skicka den",
	"skicka iväg den",
	"godkänt",
	"godkänner",
	"bekräftar",
	"det blir bra",
	"varsågod",
}

var englishAffirmatives = []string{
	"yes",
	"yep",
	"yeah",
	"sure",
	"absolutely",
	"go ahead",
	"do it",
	"send it",
	"confirm",
	"confirmed",
	"approved",
	"please do",
	"sounds good",
}

var sharedAffirmatives = []string{
	"ok",
	"okej",
	"okay",
}

var negations = []string{
	"nej",
	"inte",
	"vänta",
	"avbryt",
	"stopp",
	"ändra",
	"istället",
	"annan",
	"annat",
	"no",
	"not",
	"don't",
	"dont",
	"wait",
	"cancel",
	"stop",
	"hold",
}

func (c *KeywordClassifier) IsAffirmative(message string) bool {
	normalized := normalizeConfirmation(message)
	if normalized == "" {
		return false
	}
	// questions are never confirmations
	if strings.HasSuffix(strings.TrimSpace(message), "?") {
		return false
	}

	words := strings.Fields(normalized)
	for _, word := range words {
		for _, negation := range negations {
			if word == negation {
				return false
			}
		}
	}
	// long replies are discussion, not confirmation
	if len(words) > 6 {
		return false
	}

	candidates := affirmativesFor(message)
	for _, phrase := range candidates {
		if normalized == phrase {
			return true
		}
		if strings.HasPrefix(normalized, phrase+" ") {
			return true
		}
	}
	return false
}

// affirmativesFor picks the keyword set by detected language. Detection
// on two-word replies is shaky, so an unclear result widens the set
// instead of guessing.
func affirmativesFor(message string) []string {
	info := whatlanggo.Detect(message)

	ret := make([]string, 0, len(swedishAffirmatives)+len(englishAffirmatives)+len(sharedAffirmatives))
	switch {
	case info.Lang == whatlanggo.Swe && info.IsReliable():
		ret = append(ret, swedishAffirmatives...)
	case info.Lang == whatlanggo.Eng && info.IsReliable():
		ret = append(ret, englishAffirmatives...)
	default:
		ret = append(ret, swedishAffirmatives...)
		ret = append(ret, englishAffirmatives...)
	}
	return append(ret, sharedAffirmatives...)
}

func normalizeConfirmation(message string) string {
	lowered := strings.ToLower(strings.TrimSpace(message))
	var b strings.Builder
	for _, r := range lowered {
		switch r {
		case ',', '.', '!', ':', ';':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
