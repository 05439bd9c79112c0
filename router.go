package ugibdd

import (
	"context"
	"errors"
	"strings"
)

// View names a screen the client can show.
type View string

const (
	ViewAuth      View = "auth"
	ViewHome      View = "home"
	ViewAppeals   View = "appeals"
	ViewInfo      View = "info"
	ViewProfile   View = "profile"
	ViewKusp      View = "kusp"
	ViewProtocols View = "protocols"
	ViewTsu       View = "tsu"
	ViewAdmin     View = "admin"
)

// AccessDeniedNotice is shown when a fragment resolves to a view the actor may not open.
const AccessDeniedNotice = "Доступ запрещен"

var views = map[Mode][]View{
	ModeGuest:    {ViewHome, ViewAppeals, ViewInfo},
	ModeEmployee: {ViewHome, ViewProfile, ViewKusp, ViewProtocols, ViewTsu, ViewAdmin},
}

// Route is the outcome of resolving a fragment.
type Route struct {
	View View `json:"view"`
	// Fragment is what the address should show after resolution.
	Fragment   string `json:"fragment"`
	Redirected bool   `json:"redirected"`
	Denied     bool   `json:"denied"`
}

// Resolve maps a URL fragment to a view for the given mode and actor.
func Resolve(mode Mode, fragment string, actor *Employee) Route {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")

	allowed, ok := views[mode]
	if !ok {
		return Route{View: ViewAuth, Redirected: fragment != ""}
	}
	want := View(fragment)
	if fragment == "" {
		want = ViewHome
	}
	known := false
	for _, v := range allowed {
		if v == want {
			known = true
			break
		}
	}
	if !known {
		return Route{View: ViewHome, Fragment: string(ViewHome), Redirected: true}
	}
	if want == ViewAdmin && !CanManageUsers(actor) {
		return Route{View: ViewHome, Fragment: string(ViewHome), Redirected: true, Denied: true}
	}
	return Route{View: want, Fragment: string(want), Redirected: fragment != string(want)}
}

// Navigate pings the session and resolves fragment against the resulting
// mode. A denied route raises an error notice.
func (s *Service) Navigate(ctx context.Context, fragment string) Route {
	if err := s.Session.Ping(ctx); err != nil && !errors.Is(err, ErrNotAuthenticated) && !errors.Is(err, ErrSessionExpired) {
		s.log.Warnw("ping failed", "error", err)
	}
	r := Resolve(s.Session.CurrentMode(), fragment, s.Session.CurrentUser())
	if r.Denied {
		s.Notices.Notify(NoticeError, AccessDeniedNotice)
	}
	return r
}
