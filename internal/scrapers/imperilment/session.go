package imperilment

import (
	"net/http"
	"strings"
)

// Session is the set of cookies the remote has handed out so far. It is a value:
// every request returns the session to use for the next one, nothing is shared.
type Session struct {
	cookies []*http.Cookie
}

// NewSession returns a session already holding the given cookies.
func NewSession(cookies ...*http.Cookie) Session {
	return Session{}.With(cookies)
}

func (s Session) Empty() bool {
	return len(s.cookies) == 0
}

// Cookie returns the value of the cookie called `name`.
func (s Session) Cookie(name string) (string, bool) {
	for _, c := range s.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Header renders the session as the value of a Cookie request header.
func (s Session) Header() string {
	pairs := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// With returns a new session where `issued` (usually the Set-Cookie headers of a
// response) replace existing cookies of the same name. Expired cookies are removed.
func (s Session) With(issued []*http.Cookie) Session {
	next := make([]*http.Cookie, 0, len(s.cookies)+len(issued))
	next = append(next, s.cookies...)

	for _, cookie := range issued {
		idx := -1
		for i, existing := range next {
			if existing.Name == cookie.Name {
				idx = i
				break
			}
		}
		expired := cookie.MaxAge < 0
		switch {
		case idx >= 0 && expired:
			next = append(next[:idx], next[idx+1:]...)
		case idx >= 0:
			next[idx] = &http.Cookie{Name: cookie.Name, Value: cookie.Value}
		case !expired:
			next = append(next, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}

	return Session{cookies: next}
}
