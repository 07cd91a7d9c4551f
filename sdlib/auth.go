package sdlib

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/sealdb/sdcodec"
	"github.com/creachadair/sealdb/sdcrypt"
	"github.com/creachadair/sealdb/sddb"
)

// SessionDuration is how long a login session remains valid.
const SessionDuration = 7 * 24 * time.Hour

// TokenLen is the number of random bytes in a session token.
const TokenLen = 32

// User roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidEmail   = errors.New("invalid email")
	ErrWeakPassword   = errors.New("password must be at least 8 characters")
	ErrInvalidRole    = errors.New("role must be admin or user")
	ErrBadCredentials = errors.New("invalid credentials")
)

// ValidEmail reports whether email is plausible as an account email.
func ValidEmail(email string) bool { return len(email) >= 3 && strings.Contains(email, "@") }

// ValidPassword reports whether password is acceptable for an account.
func ValidPassword(password string) bool { return len(password) >= 8 }

// ValidRole reports whether role is a known user role.
func ValidRole(role string) bool { return role == RoleAdmin || role == RoleUser }

// Accounts manages user accounts and login sessions stored in the system
// collections of a database.
type Accounts struct {
	DB *sddb.DB

	// Clock, if non-nil, is used instead of time.Now for session expiry.
	Clock func() time.Time
}

// A Session is an authenticated login session.
type Session struct {
	Token   string    `json:"token"`
	UserID  string    `json:"userId"`
	Expires time.Time `json:"expires"`
}

func (a Accounts) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}

// addMu serializes the check and insert of AddUser, so that concurrent
// registrations cannot create two accounts with one email. It does not
// cover other processes sharing the data file.
var addMu sync.Mutex

// AddUser creates a new user account with the given role and returns its id.
// If role is "", the first user created is an admin and later users are not.
func (a Accounts) AddUser(email, password, role string) (string, error) {
	if !ValidEmail(email) {
		return "", ErrInvalidEmail
	} else if !ValidPassword(password) {
		return "", ErrWeakPassword
	} else if role != "" && !ValidRole(role) {
		return "", ErrInvalidRole
	}
	hash, err := sdcrypt.HashPassword(password)
	if err != nil {
		return "", err
	}

	addMu.Lock()
	defer addMu.Unlock()
	if _, ok := a.DB.FindBy(sddb.Users, "email", email); ok {
		return "", ErrEmailTaken
	}
	if role == "" {
		role = RoleUser
		if len(a.DB.FindAll(sddb.Users)) == 0 {
			role = RoleAdmin
		}
	}
	id, ok := a.DB.Insert(sddb.Users, sddb.Document{
		"email":    sdcodec.String(email),
		"password": sdcodec.String(hash),
		"role":     sdcodec.String(role),
	})
	if !ok {
		return "", errors.New("failed to create user")
	}
	return id, nil
}

// Register creates a new user account and logs it in.
func (a Accounts) Register(email, password string) (Session, error) {
	id, err := a.AddUser(email, password, "")
	if err != nil {
		return Session{}, err
	}
	return a.createSession(id)
}

// Login checks the credentials of a user and starts a new session.
func (a Accounts) Login(email, password string) (Session, error) {
	user, ok := a.DB.FindBy(sddb.Users, "email", email)
	if !ok {
		return Session{}, ErrBadCredentials
	}
	stored, ok := user.Str("password")
	if !ok || !sdcrypt.VerifyPassword(password, stored) {
		return Session{}, ErrBadCredentials
	}
	id, ok := user.Str(sddb.FieldID)
	if !ok {
		return Session{}, fmt.Errorf("user record for %q is corrupt", email)
	}
	return a.createSession(id)
}

func (a Accounts) createSession(userID string) (Session, error) {
	token, err := sdcrypt.RandomHex(TokenLen)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	expires := a.now().Add(SessionDuration).Truncate(time.Second)
	if _, ok := a.DB.Insert(sddb.Sessions, sddb.Document{
		"user_id": sdcodec.String(userID),
		"token":   sdcodec.String(token),
		"expires": sdcodec.Int(expires.Unix()),
	}); !ok {
		return Session{}, errors.New("failed to create session")
	}
	return Session{Token: token, UserID: userID, Expires: expires}, nil
}

// ValidateToken returns the user id of the session identified by token, and
// reports whether the session is valid. An expired session is deleted.
func (a Accounts) ValidateToken(token string) (string, bool) {
	sess, ok := a.DB.FindBy(sddb.Sessions, "token", token)
	if !ok {
		return "", false
	}
	expires, ok := sess.Int("expires")
	if !ok {
		return "", false
	}
	if expires < a.now().Unix() {
		if id, ok := sess.Str(sddb.FieldID); ok {
			a.DB.Delete(sddb.Sessions, id)
		}
		return "", false
	}
	return sess.Str("user_id")
}

// GetUser returns the user record for the session identified by token, with
// the password hash removed.
func (a Accounts) GetUser(token string) (sddb.Document, bool) {
	id, ok := a.ValidateToken(token)
	if !ok {
		return nil, false
	}
	user, ok := a.DB.FindOne(sddb.Users, id)
	if !ok {
		return nil, false
	}
	delete(user, "password")
	return user, true
}

// Logout ends the session identified by token, and reports whether there was
// such a session.
func (a Accounts) Logout(token string) bool {
	sess, ok := a.DB.FindBy(sddb.Sessions, "token", token)
	if !ok {
		return false
	}
	id, ok := sess.Str(sddb.FieldID)
	return ok && a.DB.Delete(sddb.Sessions, id)
}

// IsAdmin reports whether token identifies a valid session of an admin user.
func (a Accounts) IsAdmin(token string) bool {
	user, ok := a.GetUser(token)
	if !ok {
		return false
	}
	role, _ := user.Str("role")
	return role == RoleAdmin
}
