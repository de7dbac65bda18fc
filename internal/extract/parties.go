package extract

import (
	"regexp"
	"strings"
)

const (
	// sectionMaxLen caps how far a labelled party section extends when
	// no other party label follows it.
	sectionMaxLen = 400
	// anchorINNRadius is how far around an anchor or name an INN may sit.
	anchorINNRadius = 200
)

var (
	supplierLabelRe = regexp.MustCompile(`(?i)(?:поставщик|продавец|исполнитель)(?:\s*\([^)\n]*\))?\s*:`)
	buyerLabelRe    = regexp.MustCompile(`(?i)(?:покупатель|заказчик|плательщик|грузополучатель)(?:\s*\([^)\n]*\))?\s*:`)
	payeeLabelRe    = regexp.MustCompile(`(?i)(?:^|[^а-яёa-z])получатель(?:\s*:|[ \t]*\n|\t)`)
	anyPartyLabelRe = regexp.MustCompile(`(?i)(?:поставщик|продавец|исполнитель|покупатель|заказчик|плательщик|грузополучатель|грузоотправитель|получатель|основание)(?:\s*\([^)\n]*\))?\s*:`)

	// companyRe matches a legal-form prefix followed by one name token;
	// quoted names may span several words.
	companyRe = regexp.MustCompile(`(?:^|[^А-Яа-яЁёA-Za-z])((?:ООО|ОАО|ЗАО|ПАО|АО|ИП)\s+(?:"[^"\n]+"|«[^»\n]+»|“[^”\n]+”|[А-ЯЁA-Z][^\s,;"«»]*))`)

	innRe        = regexp.MustCompile(`(?i)(?:инн|inn)(?:\s*/\s*кпп)?[\s:№]*(\d{10,12})(?:\D|$)`)
	kppRe        = regexp.MustCompile(`(?i)(?:кпп|kpp)[\s:№]*(\d{9})(?:\D|$)`)
	innKppPairRe = regexp.MustCompile(`(?i)инн\s*/\s*кпп[\s:№]*\d{10,12}\s*/\s*(\d{9})(?:\D|$)`)
	addressRe    = regexp.MustCompile(`(?i)(?:юридический\s+|почтовый\s+)?адрес\s*:?\s*([^\n]+)`)

	// requisitesLineRe matches a line that continues a party block: ИНН,
	// КПП, registration codes, address or phone.
	requisitesLineRe = regexp.MustCompile(`(?i)^\s*(?:инн|кпп|огрн|огрнип|окпо|юр\.\s*адрес|(?:юридический\s+|почтовый\s+)?адрес|тел\.?|телефон)(?:[\s.:/№]|$)`)

	nameStopRe = regexp.MustCompile(`(?i)(?:^|[\s,;(])(?:инн|кпп|огрн|адрес|юр\.\s*адрес|р/с|р/сч|тел\.?|телефон|бик)(?:[\s.:/№]|$)`)
)

func (e *Extractor) findSupplier(text string) Party {
	var p Party
	supplierSection, hasSupplierSection := sectionAfter(text, supplierLabelRe)
	payeeSection, hasPayeeSection := sectionAfter(text, payeeLabelRe)
	// Buyer blocks are blanked in place so offsets into text stay valid.
	cleaned := maskSpans(text, buyerSpans(text))

	// Name: four stages, first success wins.
	var nameHit section
	var anchor *anchorHit
	switch {
	case hasSupplierSection && labelledName(supplierSection.text) != "":
		p.Name = ptr(labelledName(supplierSection.text))
	default:
		if hit, ok := e.matchAnchor(cleaned); ok {
			anchor = &hit
			p.Name = ptr(hit.name)
			break
		}
		if hasPayeeSection {
			if m := companyRe.FindStringSubmatch(payeeSection.text); m != nil {
				p.Name = ptr(cleanName(m[1]))
				break
			}
		}
		if loc := companyRe.FindStringSubmatchIndex(cleaned); loc != nil {
			p.Name = ptr(cleanName(cleaned[loc[2]:loc[3]]))
			nameHit = section{text: cleaned, start: loc[2], end: loc[3]}
		}
	}

	// INN and KPP: same section order, then the first value outside the
	// buyer sections.
	var candidates []string
	if hasSupplierSection {
		candidates = append(candidates, supplierSection.text)
	}
	if anchor != nil {
		candidates = append(candidates, around(cleaned, anchor.start, anchor.end, anchorINNRadius))
	}
	if nameHit.text != "" {
		candidates = append(candidates, around(nameHit.text, nameHit.start, nameHit.end, anchorINNRadius))
	}
	if hasPayeeSection {
		candidates = append(candidates, payeeSection.text)
	}
	candidates = append(candidates, cleaned)

	p.INN = firstINN(candidates)
	if p.INN == nil && anchor != nil && anchor.anchor.INN != "" {
		p.INN = ptr(anchor.anchor.INN)
	}
	p.KPP = firstKPP(candidates)

	if hasSupplierSection {
		p.Address = findAddress(supplierSection.text)
	}
	return p
}

func findCustomer(text string) Party {
	var p Party
	s, ok := sectionAfter(text, buyerLabelRe)
	if !ok {
		return p
	}
	if name := labelledName(s.text); name != "" {
		p.Name = ptr(name)
	}
	p.INN = firstINN([]string{s.text})
	p.KPP = firstKPP([]string{s.text})
	p.Address = findAddress(s.text)
	return p
}

// section is a slice of the document with its offsets.
type section struct {
	text       string
	start, end int
}

// sectionAfter returns the text following the first match of label, up
// to the next party label or sectionMaxLen bytes.
func sectionAfter(text string, label *regexp.Regexp) (section, bool) {
	loc := label.FindStringIndex(text)
	if loc == nil {
		return section{}, false
	}
	start := loc[1]
	end := start + sectionMaxLen
	if end > len(text) {
		end = len(text)
	}
	end = runeBoundary(text, end)
	if next := anyPartyLabelRe.FindStringIndex(text[start:end]); next != nil {
		end = start + next[0]
	}
	return section{text: text[start:end], start: start, end: end}, true
}

// labelledName takes the name printed right after a party label: the rest
// of the label's line, or the next non-empty line when the label stands
// alone.
func labelledName(sectionText string) string {
	for _, line := range strings.SplitN(sectionText, "\n", 3) {
		if name := cleanName(cutName(line)); name != "" {
			return name
		}
	}
	return ""
}

// buyerSpans returns the byte ranges of the customer/buyer blocks: the
// label, the name after it (on the label's line, or the next line when the
// label stands alone) and the requisites lines directly below. A blank
// line, another party label or any other line ends the block.
func buyerSpans(text string) [][2]int {
	var spans [][2]int
	for _, loc := range buyerLabelRe.FindAllStringIndex(text, -1) {
		end := lineEnd(text, loc[1])
		if strings.TrimSpace(text[loc[1]:end]) == "" && end < len(text) {
			end = lineEnd(text, end+1)
		}
		for end < len(text) {
			next := lineEnd(text, end+1)
			line := text[end+1 : next]
			if !requisitesLineRe.MatchString(line) || anyPartyLabelRe.MatchString(line) {
				break
			}
			end = next
		}
		spans = append(spans, [2]int{loc[0], end})
	}
	return spans
}

// maskSpans replaces every byte inside spans with a space, keeping
// newlines, so the result has the same length and line structure.
func maskSpans(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return text
	}
	b := []byte(text)
	for _, sp := range spans {
		for i := sp[0]; i < sp[1]; i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func lineEnd(text string, from int) int {
	if i := strings.IndexByte(text[from:], '\n'); i >= 0 {
		return from + i
	}
	return len(text)
}

func firstINN(candidates []string) *string {
	for _, c := range candidates {
		if m := innRe.FindStringSubmatch(c); m != nil {
			return ptr(m[1])
		}
	}
	return nil
}

func firstKPP(candidates []string) *string {
	for _, c := range candidates {
		if m := innKppPairRe.FindStringSubmatch(c); m != nil {
			return ptr(m[1])
		}
		if m := kppRe.FindStringSubmatch(c); m != nil {
			return ptr(m[1])
		}
	}
	return nil
}

func findAddress(sectionText string) *string {
	m := addressRe.FindStringSubmatch(sectionText)
	if m == nil {
		return nil
	}
	addr := m[1]
	if loc := nameStopRe.FindStringIndex(addr); loc != nil && loc[0] > 0 {
		addr = addr[:loc[0]]
	}
	return optional(strings.Trim(strings.TrimSpace(addr), ",;"))
}

// cutName truncates a candidate name at the first comma, tab, newline or
// requisites marker (ИНН, КПП, адрес, р/с, ...).
func cutName(s string) string {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, ",\t\n"); i >= 0 {
		s = s[:i]
	}
	if loc := nameStopRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return s
}

func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .;:-–—")
}

func around(text string, start, end, radius int) string {
	from := start - radius
	if from < 0 {
		from = 0
	}
	to := end + radius
	if to > len(text) {
		to = len(text)
	}
	return text[runeBoundaryBack(text, from):runeBoundary(text, to)]
}

// runeBoundary moves i forward to the start of a UTF-8 sequence.
func runeBoundary(s string, i int) int {
	for i < len(s) && i > 0 && s[i]&0xC0 == 0x80 {
		i++
	}
	return i
}

// runeBoundaryBack moves i backward to the start of a UTF-8 sequence.
func runeBoundaryBack(s string, i int) int {
	for i > 0 && i < len(s) && s[i]&0xC0 == 0x80 {
		i--
	}
	return i
}
