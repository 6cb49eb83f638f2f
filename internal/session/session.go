// Package session owns the on-disk layout and identity of one logged-in
// session. All mutable state in the daemon (store, conversation index,
// request log) is constructed from a Session value at login and torn down
// with it at logout; nothing leaks between identities.
package session

// Session describes one logged-in session: its name (on-disk namespace)
// and the user identity it belongs to.
type Session struct {
	Name   string
	UserID string
}

// New validates the session name and builds a Session for the given user.
func New(name, userID string) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Session{Name: name, UserID: userID}, nil
}

// LoggedIn reports whether the session has a bound user identity. Without
// one the daemon stays in the auth-required state and opens no connection.
func (s *Session) LoggedIn() bool {
	return s.UserID != ""
}
