package intent

import (
	"strconv"
	"strings"

	"voice-broker-go/internal/models"
)

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "’", "'")
	return strings.ToLower(strings.TrimSpace(s))
}

// tokens splits s on whitespace and trims surrounding punctuation and possessives,
// keeping the original case.
func tokens(s string) []string {
	fields := strings.Fields(strings.ReplaceAll(s, "’", "'"))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,!?;:"()[]{}$`)
		f = strings.TrimSuffix(f, "'s")
		f = strings.TrimSuffix(f, "'S")
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// DetectAction finds a buy or sell verb. When both appear the earlier one wins.
func DetectAction(utterance string) (models.Action, bool) {
	text := normalizeText(utterance)
	buy := buyPattern.FindStringIndex(text)
	sell := sellPattern.FindStringIndex(text)
	switch {
	case buy != nil && (sell == nil || buy[0] < sell[0]):
		return models.ActionBuy, true
	case sell != nil:
		return models.ActionSell, true
	}
	return "", false
}

// ExtractTicker finds a ticker symbol by, in order: a known symbol in any case, a short
// all-caps token, then a company name.
func ExtractTicker(utterance string) string {
	if t := explicitTicker(utterance); t != "" {
		return t
	}
	text := normalizeText(utterance)
	for _, c := range companyNames {
		if c.pattern.MatchString(text) {
			return c.ticker
		}
	}
	return ""
}

// explicitTicker only considers symbols said as symbols, not company names.
func explicitTicker(utterance string) string {
	toks := tokens(utterance)
	for _, tok := range toks {
		if knownTickers[strings.ToUpper(tok)] {
			return strings.ToUpper(tok)
		}
	}
	for _, tok := range toks {
		if symbolPattern.MatchString(tok) && !capsStopwords[tok] {
			return tok
		}
	}
	return ""
}

// ValidSymbol reports whether s looks like a ticker symbol.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s) && !capsStopwords[s]
}

// ExtractQuantity finds a share count: "<N> shares" first, then any number, then
// spelled-out numbers. It returns 0 when none is found.
// Fractional share counts are rejected with 0 so the caller is asked again.
func ExtractQuantity(utterance string) int {
	text := normalizeText(utterance)
	if fractionalSharesPattern.MatchString(text) {
		return 0
	}
	if m := sharesPattern.FindStringSubmatch(text); m != nil {
		if n := parseDigits(m[1]); n > 0 {
			return n
		}
	}
	for _, loc := range digitsPattern.FindAllStringIndex(text, -1) {
		if partOfDecimal(text, loc[0], loc[1]) {
			continue
		}
		if n := parseDigits(text[loc[0]:loc[1]]); n > 0 {
			return n
		}
	}
	return parseNumberWords(text)
}

// partOfDecimal reports whether text[start:end] is one side of a number like 10.7.
func partOfDecimal(text string, start, end int) bool {
	if end+1 < len(text) && text[end] == '.' && isDigit(text[end+1]) {
		return true
	}
	return start >= 2 && text[start-1] == '.' && isDigit(text[start-2])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func parseDigits(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseNumberWords reads the first run of number words, such as "twenty five",
// "a hundred" or "two hundred and fifty".
func parseNumberWords(text string) int {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == '.' || r == '!' || r == '?'
	})

	total, current := 0, 0
	inRun := false
	for i, w := range words {
		if v, ok := numberWords[w]; ok {
			current += v
			inRun = true
			continue
		}
		if scale, ok := numberScales[w]; ok {
			if current == 0 {
				// "a hundred", "hundred shares"
				current = 1
			}
			current *= scale
			if scale >= 1000 {
				total += current
				current = 0
			}
			inRun = true
			continue
		}
		if inRun && w == "and" {
			continue
		}
		if !inRun && (w == "a" || w == "an") && i+1 < len(words) {
			if _, ok := numberScales[words[i+1]]; ok {
				continue
			}
		}
		if inRun {
			break
		}
	}
	return total + current
}

// HasPriceCue reports whether the utterance asks about a price.
func HasPriceCue(utterance string) bool {
	return priceCuePattern.MatchString(normalizeText(utterance))
}

// IsAdvisory reports whether the caller is asking for an opinion or a pick.
func IsAdvisory(utterance string) bool {
	return advisoryPattern.MatchString(normalizeText(utterance))
}

// IsAffirmative reports a plain yes. The yes must open the reply, and a negation,
// a question or a goodbye anywhere cancels it.
func IsAffirmative(utterance string) bool {
	text := normalizeText(utterance)
	if strings.Contains(text, "?") {
		return false
	}
	return affirmativePattern.MatchString(text) &&
		!negativePattern.MatchString(text) &&
		!conversationPattern.MatchString(text) &&
		!goodbyePattern.MatchString(text)
}

// IsGoodbye reports whether the caller is ending the call.
func IsGoodbye(utterance string) bool {
	return goodbyePattern.MatchString(normalizeText(utterance))
}

func isConversational(utterance string) bool {
	return conversationPattern.MatchString(normalizeText(utterance))
}

// ParseRecommendation recovers a trade from spoken recommendation text such as
// "I'm recommending picking up 10 shares of AAPL." Only the sentence containing
// "recommend" is read. Action defaults to buy and quantity to 10.
func ParseRecommendation(text string) (*Trade, bool) {
	loc := recommendPattern.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	sentence := sentenceAround(text, loc[0])

	trade := &Trade{Action: models.ActionBuy, Quantity: 10}
	if m := sharesOfPattern.FindStringSubmatch(sentence); m != nil {
		if n := parseDigits(m[1]); n > 0 {
			trade.Quantity = n
		}
		if sym := strings.ToUpper(m[2]); knownTickers[sym] || symbolPattern.MatchString(m[2]) {
			trade.Ticker = sym
		}
	} else if m := sharesPattern.FindStringSubmatch(normalizeText(sentence)); m != nil {
		if n := parseDigits(m[1]); n > 0 {
			trade.Quantity = n
		}
	}
	if trade.Ticker == "" {
		trade.Ticker = ExtractTicker(sentence)
	}
	if trade.Ticker == "" || capsStopwords[trade.Ticker] {
		return nil, false
	}
	if recommendSellCues.MatchString(sentence) {
		trade.Action = models.ActionSell
	}
	return trade, true
}

// sentenceAround returns the sentence of text containing index i.
func sentenceAround(text string, i int) string {
	start := strings.LastIndexAny(text[:i], ".!?") + 1
	end := len(text)
	if j := strings.IndexAny(text[i:], ".!?"); j >= 0 {
		end = i + j
	}
	return strings.TrimSpace(text[start:end])
}
