package chathub

import "matcha/backend/internal/models"

// Connection is one live socket as seen by the hub. UserID is set for
// account tokens, AnonID for anonymous tokens; both may be empty.
type Connection struct {
	ID      string
	UserID  string
	AnonID  string
	Profile *models.ProfileSummary
	Lang    string
	Client  Client

	alive bool
}

// Authenticated reports whether the connection carries an account identity.
func (c *Connection) Authenticated() bool { return c.UserID != "" }

// Alive reports whether the hub still considers the connection usable.
func (c *Connection) Alive() bool { return c.alive }

// Matches reports whether subjectID names this connection's account or
// anonymous identity.
func (c *Connection) Matches(subjectID string) bool {
	if subjectID == "" {
		return false
	}
	return c.UserID == subjectID || c.AnonID == subjectID
}

// Registry tracks every live connection, indexed by connection id and by
// account.
type Registry struct {
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
	}
}

// Add stores c and reports whether it is the first live connection of its
// account.
func (r *Registry) Add(c *Connection) (firstForUser bool) {
	c.alive = true
	r.conns[c.ID] = c
	if !c.Authenticated() {
		return false
	}
	set, ok := r.byUser[c.UserID]
	if !ok {
		set = make(map[string]*Connection)
		r.byUser[c.UserID] = set
	}
	set[c.ID] = c
	return len(set) == 1
}

// Remove drops the connection and reports whether it was the last one of its
// account. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (c *Connection, lastForUser bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	c.alive = false
	delete(r.conns, id)
	if !c.Authenticated() {
		return c, false
	}
	set := r.byUser[c.UserID]
	delete(set, id)
	if len(set) == 0 {
		delete(r.byUser, c.UserID)
		return c, true
	}
	return c, false
}

func (r *Registry) Get(id string) *Connection {
	return r.conns[id]
}

// UserConnections returns the live connections of an account.
func (r *Registry) UserConnections(userID string) []*Connection {
	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Matching returns every connection whose account or anonymous id is subjectID.
func (r *Registry) Matching(subjectID string) []*Connection {
	var out []*Connection
	for _, c := range r.conns {
		if c.Matches(subjectID) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Len() int { return len(r.conns) }
