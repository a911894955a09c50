// Package server coordinates session admission, message broadcast, and
// connection cleanup for the chatwire relay via the Registry type.
package server

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Admission and lifecycle errors surfaced by the Registry.
var (
	ErrUsernameTaken  = errors.New("username already registered")
	ErrRegistryClosed = errors.New("registry is shut down")
)

// Registry is the authoritative server-wide state: live sessions keyed by
// username and by id, and the ban set. The two session maps always form one
// bijection and every operation that touches any of the three collections
// runs under the same mutex, so a broadcast can never observe an admit or
// remove mid-flight.
type Registry struct {
	mu                 sync.Mutex
	sessionsByUsername map[string]*Session
	usernamesByID      map[int]string
	banned             map[string]struct{}
	nextID             int
	active             bool
}

// NewRegistry returns an empty, active registry.
func NewRegistry() *Registry {
	return &Registry{
		sessionsByUsername: make(map[string]*Session),
		usernamesByID:      make(map[int]string),
		banned:             make(map[string]struct{}),
		active:             true,
	}
}

// Admit associates username with the session and assigns the next id. Ids are
// strictly increasing and never reused for the lifetime of the process. A
// username that is currently live is rejected; a banned username is not — the
// ban only blocks broadcast delivery, not connecting.
func (r *Registry) Admit(username string, s *Session) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return 0, ErrRegistryClosed
	}
	if _, ok := r.sessionsByUsername[username]; ok {
		return 0, ErrUsernameTaken
	}

	r.nextID++
	id := r.nextID
	r.sessionsByUsername[username] = s
	r.usernamesByID[id] = username

	log.Printf("Admitted %q as session %d. Connected sessions: %d", username, id, len(r.sessionsByUsername))
	return id, nil
}

// Remove deletes the session with the given id from both maps and announces
// the departure to everyone first. An unknown id is a no-op, since the
// session may already have been cleaned up concurrently. A ban on the removed
// username does not survive removal.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id int) {
	username, ok := r.usernamesByID[id]
	if !ok {
		return
	}

	// The notice goes out while the departing session is still registered, so
	// it is addressed like any other broadcast — including origin-ban
	// suppression when the removed user is banned.
	r.broadcastLocked(Message{
		SenderID: id,
		Type:     TypeText,
		Body:     fmt.Sprintf("%s (id %d) has left the chat", username, id),
	})

	delete(r.sessionsByUsername, username)
	delete(r.usernamesByID, id)
	delete(r.banned, username)

	log.Printf("Removed session %d (%q). Connected sessions: %d", id, username, len(r.sessionsByUsername))
}

// Ban adds username to the ban set. Already banned is not an error.
func (r *Registry) Ban(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned[username] = struct{}{}
}

// Unban removes username from the ban set. Not banned is not an error.
func (r *Registry) Unban(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.banned, username)
}

// Banned reports whether username is currently in the ban set.
func (r *Registry) Banned(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.banned[username]
	return ok
}

// Len returns the number of currently admitted sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessionsByUsername)
}

// Broadcast applies any moderation command embedded in the message body and
// fans the message out to every admitted session, including the sender.
func (r *Registry) Broadcast(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(msg)
}

func (r *Registry) broadcastLocked(msg Message) {
	// Commands apply before the origin check, so a banned user can still
	// issue unban, including on themselves.
	r.applyModerationLocked(msg.Body)

	if sender, ok := r.usernamesByID[msg.SenderID]; ok {
		if _, banned := r.banned[sender]; banned {
			// A banned origin aborts delivery for every recipient, not just
			// the sender. See the ban-suppression tests before changing this.
			log.Printf("Suppressing broadcast from banned user %q (session %d)", sender, msg.SenderID)
			return
		}
	}

	for username, s := range r.sessionsByUsername {
		if !s.Send(msg) {
			log.Printf("Dropped message for %q: outbound buffer full or session stopped", username)
		}
	}
}

// applyModerationLocked interprets a two-token "ban <user>" or "unban <user>"
// body. State changes only when they are novel; anything else is plain text.
func (r *Registry) applyModerationLocked(body string) {
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return
	}

	target := parts[1]
	switch parts[0] {
	case "ban":
		if _, ok := r.banned[target]; !ok {
			r.banned[target] = struct{}{}
			log.Printf("Banned %q. Ban set size: %d", target, len(r.banned))
		}
	case "unban":
		if _, ok := r.banned[target]; ok {
			delete(r.banned, target)
			log.Printf("Unbanned %q. Ban set size: %d", target, len(r.banned))
		}
	}
}

// Shutdown marks the registry inactive, stops every session, and clears all
// state. Subsequent Admit calls fail with ErrRegistryClosed; subsequent
// Remove calls are no-ops.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false

	sessions := make([]*Session, 0, len(r.sessionsByUsername))
	for _, s := range r.sessionsByUsername {
		sessions = append(sessions, s)
	}
	r.sessionsByUsername = make(map[string]*Session)
	r.usernamesByID = make(map[int]string)
	r.banned = make(map[string]struct{})
	r.mu.Unlock()

	// Stop outside the lock: each stop unblocks that session's read loop,
	// whose cleanup re-enters Remove.
	for _, s := range sessions {
		s.Stop()
	}

	log.Printf("Registry shut down, stopped %d sessions", len(sessions))
}
