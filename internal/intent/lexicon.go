package intent

import "regexp"

// knownTickers are matched in any case.
var knownTickers = map[string]bool{
	"AAPL": true, "MSFT": true, "GOOGL": true, "GOOG": true, "AMZN": true, "TSLA": true,
	"META": true, "NVDA": true, "NFLX": true, "DIS": true, "AMD": true, "INTC": true,
	"WMT": true, "NKE": true, "JPM": true, "PYPL": true, "UBER": true, "SPY": true, "QQQ": true,
}

// companyNames maps spoken company names to their symbols.
var companyNames = []struct {
	pattern *regexp.Regexp
	ticker  string
}{
	{regexp.MustCompile(`\bapple\b`), "AAPL"},
	{regexp.MustCompile(`\bmicrosoft\b`), "MSFT"},
	{regexp.MustCompile(`\b(google|alphabet)\b`), "GOOGL"},
	{regexp.MustCompile(`\bamazon\b`), "AMZN"},
	{regexp.MustCompile(`\btesla\b`), "TSLA"},
	{regexp.MustCompile(`\b(facebook|meta)\b`), "META"},
	{regexp.MustCompile(`\bnvidia\b`), "NVDA"},
	{regexp.MustCompile(`\bnetflix\b`), "NFLX"},
	{regexp.MustCompile(`\bdisney\b`), "DIS"},
	{regexp.MustCompile(`\bintel\b`), "INTC"},
	{regexp.MustCompile(`\bwalmart\b`), "WMT"},
	{regexp.MustCompile(`\bnike\b`), "NKE"},
	{regexp.MustCompile(`\b(jp ?morgan|chase)\b`), "JPM"},
	{regexp.MustCompile(`\bpaypal\b`), "PYPL"},
	{regexp.MustCompile(`\buber\b`), "UBER"},
	{regexp.MustCompile(`\bcoca[- ]cola\b`), "KO"},
	{regexp.MustCompile(`\bboeing\b`), "BA"},
}

// capsStopwords are all-caps tokens that are not tickers.
var capsStopwords = map[string]bool{
	"I": true, "A": true, "OK": true, "OKAY": true, "AM": true, "PM": true, "US": true, "USA": true,
	"CEO": true, "CFO": true, "IPO": true, "ETF": true, "AI": true, "TV": true, "NYSE": true,
	"SEC": true, "GDP": true, "FED": true, "EPS": true, "YES": true, "NO": true, "HEY": true, "HI": true,
}

var (
	buyPattern  = regexp.MustCompile(`\b(buy|buying|bought|purchase|purchasing|pick up|picking up|grab|get me|acquire|invest in|load up on)\b`)
	sellPattern = regexp.MustCompile(`\b(sell|selling|sold|sale|dump|dumping|unload|offload|get rid of|cash out|trim|take profits)\b`)

	priceCuePattern = regexp.MustCompile(`\b(price|prices|priced|worth|trading at|quote|how much is|how much are|how much does|going for|valued at|share price)\b`)

	// advisoryPattern asks the broker for an opinion; these are conversation even when
	// a buy or sell verb is present.
	advisoryPattern = regexp.MustCompile(`\b(should i|do you think|what do you think|would you|recommend|recommendation|suggest|suggestion|advice|advise|any ideas|what's hot|whats hot|tips?|opinion|is it a good)\b`)

	conversationPattern = regexp.MustCompile(`\b(what|how|when|why|who|tell me|explain|market|thoughts|think|prediction|forecast|news)\b`)

	// affirmativePattern must lead the reply; "yeah, how is my portfolio" is not a yes to a pitch.
	affirmativePattern = regexp.MustCompile(`^(?:(?:well|oh|alright|all right|um|uh)[\s,]+)?(yes|yeah|yea|yep|yup|sure|do it|let's do it|lets do it|let's go|sounds good|go ahead|ok|okay|deal|absolutely|make it happen|pull the trigger|i'm in|im in)\b`)
	negativePattern    = regexp.MustCompile(`\b(no|nope|nah|not|don't|dont|never|pass|hold off|cancel)\b`)

	goodbyePattern = regexp.MustCompile(`\b(goodbye|good bye|bye|hang up|that's all|thats all|i'm done|im done|talk later|see ya|see you)\b`)

	sharesPattern = regexp.MustCompile(`\b(\d[\d,]*)\s*(shares?|stocks?)\b`)
	digitsPattern = regexp.MustCompile(`\b\d[\d,]*\b`)

	// fractionalSharesPattern catches "2.5 shares"; only whole shares trade.
	fractionalSharesPattern = regexp.MustCompile(`\d\.\d+\s*(shares?|stocks?)\b`)

	symbolPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

	// recommendation sentences as spoken by Recommendation.Pitch and the persona.
	recommendPattern  = regexp.MustCompile(`(?i)\brecommend`)
	sharesOfPattern   = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s+shares?\s+of\s+([A-Za-z]{1,5})\b`)
	recommendSellCues = regexp.MustCompile(`(?i)\b(sell|selling|trim|trimming|unload|unloading|dump|dumping|take profits|taking profits|cash out)\b`)
)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13,
	"fourteen": 14, "fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19, "twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
	"seventy": 70, "eighty": 80, "ninety": 90,
}

var numberScales = map[string]int{
	"hundred":  100,
	"thousand": 1000,
}
