package session

// Page identifies the views the gate arbitrates between.
type Page string

const (
	PageLogin     Page = "login"
	PageRegister  Page = "register"
	PageDashboard Page = "dashboard"
)

// Decision is the gate's verdict for a page load: either a forced redirect
// target or nothing, leaving in-page handlers to finish their own navigation.
type Decision struct {
	Redirect Page
}

func (d Decision) None() bool { return d.Redirect == "" }

// Decide evaluates the auth state against the requested page. A fresh
// registration keeps a signed-in user on the login page so they can read
// their new user id before it bounces them to the dashboard.
func Decide(signedIn bool, page Page, freshRegistration bool) Decision {
	if signedIn {
		if (page == PageLogin || page == PageRegister) && !freshRegistration {
			return Decision{Redirect: PageDashboard}
		}
		return Decision{}
	}
	if page == PageDashboard {
		return Decision{Redirect: PageLogin}
	}
	return Decision{}
}
