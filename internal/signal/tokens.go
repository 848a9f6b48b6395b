package signal

// Health buckets token usage relative to the rotate threshold.
type Health int

const (
	HealthGreen Health = iota
	HealthYellow
	HealthRed
)

func (h Health) String() string {
	switch h {
	case HealthGreen:
		return "green"
	case HealthYellow:
		return "yellow"
	default:
		return "red"
	}
}

// Tracker keeps the running token estimate for one session.
//
// The estimate is the prompt's token count plus a quarter of every
// character the agent produced or pulled into context. When the backend
// reports its own usage the larger of the two numbers wins, so the total
// never decreases.
type Tracker struct {
	promptTokens    int
	chars           int
	reported        int
	warnThreshold   int
	rotateThreshold int
	warned          bool
	last            int

	// OnTokens is called with the running total whenever it changes.
	OnTokens func(total int)
	// OnWarn is called once, the first time the total reaches the warn
	// threshold.
	OnWarn func(total int)
}

// NewTracker returns a Tracker seeded with the prompt's token count.
// A threshold of zero disables the corresponding check.
func NewTracker(promptTokens, warnThreshold, rotateThreshold int) *Tracker {
	return &Tracker{
		promptTokens:    promptTokens,
		warnThreshold:   warnThreshold,
		rotateThreshold: rotateThreshold,
		last:            promptTokens,
	}
}

// AddChars records characters that entered the context window.
func (t *Tracker) AddChars(n int) {
	if n <= 0 {
		return
	}
	t.chars += n
	t.changed()
}

// Report records a backend-reported token count.
func (t *Tracker) Report(tokens int) {
	if tokens <= t.reported {
		return
	}
	t.reported = tokens
	t.changed()
}

// Total returns the current running estimate.
func (t *Tracker) Total() int {
	est := t.promptTokens + t.chars/4
	if t.reported > est {
		return t.reported
	}
	return est
}

// ShouldRotate reports whether the total has reached the rotate threshold.
func (t *Tracker) ShouldRotate() bool {
	return t.rotateThreshold > 0 && t.Total() >= t.rotateThreshold
}

// Warned reports whether the warn threshold has been crossed.
func (t *Tracker) Warned() bool {
	return t.warned
}

// Health classifies the total: below 60% of the rotate threshold is green,
// below 80% yellow, otherwise red.
func (t *Tracker) Health() Health {
	if t.rotateThreshold <= 0 {
		return HealthGreen
	}
	pct := t.Total() * 100 / t.rotateThreshold
	switch {
	case pct < 60:
		return HealthGreen
	case pct < 80:
		return HealthYellow
	default:
		return HealthRed
	}
}

func (t *Tracker) changed() {
	total := t.Total()
	if total == t.last {
		return
	}
	t.last = total
	if t.OnTokens != nil {
		t.OnTokens(total)
	}
	if !t.warned && t.warnThreshold > 0 && total >= t.warnThreshold {
		t.warned = true
		if t.OnWarn != nil {
			t.OnWarn(total)
		}
	}
}
