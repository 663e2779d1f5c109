package chunker

import (
	"regexp"
	"strings"
)

// legalUnit is a byte range of text covering one statute unit (article,
// principle, note, or clause) with its heading parsed out.
type legalUnit struct {
	start int
	end   int
	kind  string
	title string
}

// unitHeading matches Persian statute headings at line start: a unit kind
// followed by a Persian or Latin number, e.g. "ماده ۱۲" or "تبصره 3".
var unitHeading = regexp.MustCompile(`(?m)^(ماده|اصل|تبصره|بند)[ \t]+([0-9\x{06F0}-\x{06F9}]+)([^\n]*)$`)

// findLegalUnits locates statute headings and returns the ranges between
// consecutive headings. Returns nil when the text has no recognizable units,
// in which case the caller falls back to window chunking.
func findLegalUnits(text string) []legalUnit {
	matches := unitHeading.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	units := make([]legalUnit, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		kind := text[m[2]:m[3]]
		title := strings.TrimSpace(text[m[4]:m[5]] + text[m[6]:m[7]])
		units = append(units, legalUnit{start: m[0], end: end, kind: kind, title: title})
	}
	return units
}

// documentTypeMarkers maps filename/content markers to document types.
var documentTypeMarkers = []struct {
	marker  string
	docType string
}{
	{"قانون", "law"},
	{"law", "law"},
	{"آیین‌نامه", "regulation"},
	{"آیین نامه", "regulation"},
	{"regulation", "regulation"},
	{"رای", "ruling"},
	{"حکم", "ruling"},
	{"ruling", "ruling"},
}

// detectDocumentType infers law/regulation/ruling from the source name first,
// then the opening of the content. Unknown inputs are plain documents.
func detectDocumentType(source, text string) string {
	sourceLower := strings.ToLower(source)
	for _, m := range documentTypeMarkers {
		if strings.Contains(sourceLower, m.marker) {
			return m.docType
		}
	}
	head := text
	if len(head) > 500 {
		head = head[:500]
	}
	headLower := strings.ToLower(head)
	for _, m := range documentTypeMarkers {
		if strings.Contains(headLower, m.marker) {
			return m.docType
		}
	}
	return "document"
}

// domainKeywords score the opening of a document into a legal domain.
var domainKeywords = map[string][]string{
	"criminal":   {"جرم", "مجازات", "کیفری", "زندان", "حبس"},
	"civil":      {"حقوق مدنی", "عقد", "قرارداد", "ارث", "وصیت"},
	"family":     {"خانواده", "ازدواج", "طلاق", "نفقه", "حضانت"},
	"commercial": {"تجاری", "شرکت", "سهامی", "چک", "برات"},
}

// detectLegalDomain picks the domain whose keywords appear most often in the
// first part of the content; "unknown" when nothing matches.
func detectLegalDomain(text string) string {
	head := text
	if len(head) > 1000 {
		head = head[:1000]
	}
	headLower := strings.ToLower(head)

	best, bestScore := "unknown", 0
	for domain, keywords := range domainKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(headLower, kw) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && domain < best) {
			best, bestScore = domain, score
		}
	}
	return best
}
