package livesearch

import "github.com/wesm/livefind/internal/backend"

// scopedToken is a reuse token plus the request it was derived from.
type scopedToken struct {
	token backend.ReuseToken
	text  string
	opts  Options
}

// narrowFunc reports whether a scope built for previous may restrict a
// query for next.
type narrowFunc func(previous, next string, opts Options) bool

func (s *scopedToken) validFor(text string, opts Options, narrows narrowFunc) bool {
	return s != nil && s.opts == opts && narrows(s.text, text, opts)
}

// reuseState tracks the tokens available for narrowing. The priming token
// covers the whole scope of its options and is valid for any text; the
// last-query token is narrower but only valid for extensions of its text.
// Guarded by Coordinator.mu.
type reuseState struct {
	disabled bool
	prime    *scopedToken
	last     *scopedToken
}

// choose returns the narrowest token valid for the request. needPrime is
// set when no token applies because the options changed since priming.
func (r *reuseState) choose(text string, opts Options, narrows narrowFunc) (token backend.ReuseToken, needPrime bool) {
	if r.disabled {
		return backend.NoReuseToken, false
	}
	if r.last.validFor(text, opts, narrows) {
		return r.last.token, false
	}
	if r.prime.validFor(text, opts, narrows) {
		return r.prime.token, false
	}
	return backend.NoReuseToken, true
}

func (r *reuseState) setPrime(opts Options, token backend.ReuseToken) {
	r.prime = &scopedToken{token: token, opts: opts}
	if r.last != nil && r.last.opts != opts {
		r.last = nil
	}
}

func (r *reuseState) record(text string, opts Options, token backend.ReuseToken) {
	if r.disabled || token == backend.NoReuseToken {
		return
	}
	r.last = &scopedToken{token: token, text: text, opts: opts}
}

// forget drops every kept token; the next request primes again.
func (r *reuseState) forget() {
	r.prime = nil
	r.last = nil
}

// disable switches to plain queries for the rest of the coordinator's life.
func (r *reuseState) disable() {
	r.disabled = true
	r.prime = nil
	r.last = nil
}
