// Package guard decides whether a protected view may render.
package guard

import (
	"github.com/trezcool/edusys/core/session"
)

type Decision int

const (
	// Hold: the startup resolution is not over, show a loading placeholder.
	Hold Decision = iota
	// Redirect: nobody is logged in, go to the login view.
	Redirect
	// Render: show the view.
	Render
)

func (d Decision) String() string {
	switch d {
	case Hold:
		return "hold"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decide is Hold iff the session is resolving, Redirect iff it is resolved without identity,
// Render otherwise.
func Decide(s session.Session) Decision {
	switch {
	case s.Resolving:
		return Hold
	case s.Identity == nil:
		return Redirect
	default:
		return Render
	}
}

type (
	Outcome struct {
		Decision Decision
		Location string // set on Redirect
	}

	Guard struct {
		loginPath string
	}
)

func New(loginPath string) Guard {
	return Guard{loginPath: loginPath}
}

func (g Guard) Evaluate(s session.Session) Outcome {
	d := Decide(s)
	if d == Redirect {
		return Outcome{Decision: d, Location: g.loginPath}
	}
	return Outcome{Decision: d}
}
