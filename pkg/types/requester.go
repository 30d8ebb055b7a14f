package types

// Requester is the authenticated caller resolved by the auth middleware.
type Requester struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// CanAccess reports whether the requester may act on resources owned by userID.
func (r *Requester) CanAccess(userID string) bool {
	if r == nil {
		return false
	}
	return r.IsAdmin || r.UserID == userID
}

// ActorID returns the identifier recorded in audit trails; system jobs have no requester.
func (r *Requester) ActorID() string {
	if r == nil {
		return "system"
	}
	return r.UserID
}
