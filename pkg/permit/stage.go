package permit

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type stageKeywords struct {
	stage Stage
	stems []string
}

// statusKeywords is checked top to bottom; the first stage with a matching
// stem wins. Stems are stored folded and without accents.
var statusKeywords = []stageKeywords{
	{StageApproved, []string{"εγκρ", "εκδο", "approv", "issued"}},
	{StageReview, []string{"ελεγχ", "review"}},
	{StageSubmission, []string{"υποβολ", "υποβλ", "submit"}},
	{StageSignatures, []string{"υπογραφ", "signatur"}},
	{StageStudies, []string{"μελετ", "stud"}},
}

var statusCodes = map[int]Stage{
	5: StageApproved,
	4: StageReview,
	3: StageSubmission,
	2: StageSignatures,
	1: StageStudies,
}

// StatusToStage maps a portal status onto a workflow stage. The text is
// matched first; the numeric code is only consulted when no keyword matches.
// Anything unrecognised maps to data collection.
func StatusToStage(statusText, statusCode string) Stage {
	if st, ok := stageFromText(statusText); ok {
		return st
	}
	if n, err := strconv.Atoi(strings.TrimSpace(statusCode)); err == nil {
		if st, ok := statusCodes[n]; ok {
			return st
		}
	}
	return StageDataCollection
}

// HasStatusKeyword reports whether s looks like a portal status.
func HasStatusKeyword(s string) bool {
	_, ok := stageFromText(s)
	return ok
}

func stageFromText(s string) (Stage, bool) {
	folded := foldText(s)
	if folded == "" {
		return "", false
	}
	for _, kw := range statusKeywords {
		for _, stem := range kw.stems {
			if strings.Contains(folded, stem) {
				return kw.stage, true
			}
		}
	}
	return "", false
}

// foldText case-folds s and strips combining marks so that "Εγκρίθηκε" and
// "εγκριθηκε" compare equal.
func foldText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
