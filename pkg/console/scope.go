package console

// Scoped switches. Each one records the prior value under the lock, sets
// the new one, and returns a function that restores the prior value. The
// intended shape is
//
//	defer c.User()()
//
// which survives panics in the scoped body. Scopes nest; restoring out of
// order restores whatever value each scope captured.

func (c *Console) swapBool(target *bool, v bool) func() {
	c.mu.Lock()
	prev := *target
	*target = v
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		*target = prev
		c.mu.Unlock()
	}
}

func (c *Console) swapString(target *string, v string) func() {
	c.mu.Lock()
	prev := *target
	*target = v
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		*target = prev
		c.mu.Unlock()
	}
}

// User marks output-sink writes as user-directed: shown even in user
// mode, coloured with the user colour.
func (c *Console) User() func() { return c.swapBool(&c.out.user, true) }

// UserErr is User for the error sink; batched blocks written under it
// stay visible in user mode and take the user colour.
func (c *Console) UserErr() func() { return c.swapBool(&c.err.user, true) }

// Warn colours output-sink writes with the warning colour.
func (c *Console) Warn() func() { return c.swapBool(&c.out.warn, true) }

// Error colours output-sink writes with the error colour. Error wins over
// Warn when both are active.
func (c *Console) Error() func() { return c.swapBool(&c.out.errored, true) }

// FileOnly suppresses output-sink writes on screen; they still reach the
// log.
func (c *Console) FileOnly() func() { return c.swapBool(&c.out.fileOnly, true) }

// UserMode scopes the visibility gate itself, for callers that want it
// flipped only for a stretch of code. SetUserMode is the unscoped form.
func (c *Console) UserMode(on bool) func() { return c.swapBool(&c.userMode, on) }

// Prefix swaps the prefix used on timestamped lines and block headers.
func (c *Console) Prefix(prefix string) func() { return c.swapString(&c.prefix, prefix) }

// ErrHeader swaps the message carried in error-block headers. Padding
// spaces are added around non-empty messages.
func (c *Console) ErrHeader(msg string) func() {
	if msg != "" {
		msg = " " + msg + " "
	}
	return c.swapString(&c.err.headerMsg, msg)
}

// Highlight activates keyword highlighting on the output sink with the
// default colours: high words in the highlight colour, low words in the
// lowlight colour.
func (c *Console) Highlight(high, low []string) func() {
	var hm, lm map[string]string
	if len(high) > 0 {
		hm = make(map[string]string, len(high))
		for _, w := range high {
			hm[w] = ""
		}
	}
	if len(low) > 0 {
		lm = make(map[string]string, len(low))
		for _, w := range low {
			lm[w] = ""
		}
	}
	return c.HighlightMap(hm, lm)
}

// HighlightMap is Highlight with caller-chosen escape sequences; empty
// sequences pick the default colours. The maps must not be mutated while
// the scope is active.
func (c *Console) HighlightMap(high, low map[string]string) func() {
	c.mu.Lock()
	prevHigh, prevLow := c.out.high, c.out.low
	c.out.high, c.out.low = high, low
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.out.high, c.out.low = prevHigh, prevLow
		c.mu.Unlock()
	}
}
