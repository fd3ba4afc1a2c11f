// Package session keeps the signed-in user, their profile and the theme
// preference.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zombor/receipt-wallet/internal/kv"
)

var (
	// ErrSignedOut is returned when no user is stored
	ErrSignedOut = errors.New("no user is signed in")
	// ErrNoProvider is returned when sign-in is not configured
	ErrNoProvider = errors.New("sign-in provider is not configured")
	// ErrInvalidTheme is returned for themes other than light and dark
	ErrInvalidTheme = errors.New("theme must be light or dark")
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Address is the postal address on a profile
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// Profile holds the onboarding details
type Profile struct {
	FullName      string  `json:"fullName"`
	DateOfBirth   string  `json:"dateOfBirth"`
	Gender        string  `json:"gender"`
	ContactNumber string  `json:"contactNumber"`
	PanNumber     string  `json:"panNumber"`
	AadhaarNumber string  `json:"aadhaarNumber"`
	Address       Address `json:"address"`
}

// User is the locally stored account record
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Image     string    `json:"image"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsSynced  bool      `json:"is_synced"`
	Profile   *Profile  `json:"profile,omitempty"`
}

// ProfileForm is the onboarding form as submitted
type ProfileForm struct {
	FullName      string `json:"fullName"`
	DateOfBirth   string `json:"dateOfBirth"`
	Gender        string `json:"gender"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email"`
	PanNumber     string `json:"panNumber"`
	AadhaarNumber string `json:"aadhaarNumber"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pincode       string `json:"pincode"`
	Country       string `json:"country"`
}

// Identity is what a sign-in provider knows about the user
type Identity struct {
	ID    string
	Name  string
	Photo string
	Email string
}

// Provider runs the OAuth flow with an identity provider
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Session is the single accessor for the current user. The stored record
// is read once and cached until Refresh or a write.
type Session struct {
	db         kv.Store
	provider   Provider
	timeSource TimeSource

	mu     sync.Mutex
	user   *User
	loaded bool
}

// New creates a new Session. provider may be nil when sign-in is disabled.
func New(db kv.Store, provider Provider) *Session {
	return NewWithDeps(db, provider, &defaultTimeSource{})
}

// NewWithDeps creates a new Session with custom dependencies for testing
func NewWithDeps(db kv.Store, provider Provider, timeSrc TimeSource) *Session {
	return &Session{db: db, provider: provider, timeSource: timeSrc}
}

// Current returns a copy of the signed-in user
func (s *Session) Current() (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.refreshLocked(); err != nil {
			return nil, err
		}
	}
	if s.user == nil {
		return nil, ErrSignedOut
	}
	return s.user.clone(), nil
}

// Refresh drops the cache and rereads the stored user
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked()
}

func (s *Session) refreshLocked() error {
	data, err := s.db.Get(kv.KeyCurrentUser)
	if errors.Is(err, kv.ErrNotFound) {
		s.user, s.loaded = nil, true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading current user: %w", err)
	}

	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decoding current user: %w", err)
	}
	s.user, s.loaded = &user, true
	return nil
}

// AuthCodeURL returns the URL that starts the sign-in flow
func (s *Session) AuthCodeURL(state string) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	return s.provider.AuthCodeURL(state), nil
}

// SignIn exchanges an authorization code and stores the resulting user
func (s *Session) SignIn(ctx context.Context, code string) (*User, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("authorization code is required")
	}

	identity, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	now := s.timeSource.Now().UTC()
	user := &User{
		ID:        identity.ID,
		Username:  identity.Name,
		Image:     identity.Photo,
		Email:     identity.Email,
		CreatedAt: now,
		UpdatedAt: now,
		IsSynced:  false,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(user); err != nil {
		return nil, err
	}
	return user.clone(), nil
}

// SignOut forgets the current user
func (s *Session) SignOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Delete(kv.KeyCurrentUser); err != nil {
		return fmt.Errorf("removing current user: %w", err)
	}
	s.user, s.loaded = nil, true
	return nil
}

// UpdateProfile merges the onboarding form into the stored user. Full name
// and email replace the username and email when given.
func (s *Session) UpdateProfile(form ProfileForm) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.refreshLocked(); err != nil {
			return nil, err
		}
	}
	if s.user == nil {
		return nil, ErrSignedOut
	}

	user := s.user.clone()
	if form.FullName != "" {
		user.Username = form.FullName
	}
	if form.Email != "" {
		user.Email = form.Email
	}
	user.UpdatedAt = s.timeSource.Now().UTC()
	user.IsSynced = false
	user.Profile = &Profile{
		FullName:      form.FullName,
		DateOfBirth:   form.DateOfBirth,
		Gender:        form.Gender,
		ContactNumber: form.ContactNumber,
		PanNumber:     form.PanNumber,
		AadhaarNumber: form.AadhaarNumber,
		Address: Address{
			Street:  form.Street,
			City:    form.City,
			State:   form.State,
			Pincode: form.Pincode,
			Country: form.Country,
		},
	}

	if err := s.writeLocked(user); err != nil {
		return nil, err
	}
	return user.clone(), nil
}

// NeedsOnboarding reports whether the user has not recorded a gender yet
func (s *Session) NeedsOnboarding() (bool, error) {
	user, err := s.Current()
	if err != nil {
		return false, err
	}
	return user.Profile == nil || user.Profile.Gender == "", nil
}

func (s *Session) writeLocked(user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding current user: %w", err)
	}
	if err := s.db.Put(kv.KeyCurrentUser, data); err != nil {
		return fmt.Errorf("writing current user: %w", err)
	}
	s.user, s.loaded = user, true
	return nil
}

// Theme returns the stored theme, light when unset
func (s *Session) Theme() (string, error) {
	data, err := s.db.Get(kv.KeyTheme)
	if errors.Is(err, kv.ErrNotFound) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", fmt.Errorf("reading theme: %w", err)
	}
	if string(data) == ThemeDark {
		return ThemeDark, nil
	}
	return ThemeLight, nil
}

// SetTheme stores the theme preference
func (s *Session) SetTheme(theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: %q", ErrInvalidTheme, theme)
	}
	if err := s.db.Put(kv.KeyTheme, []byte(theme)); err != nil {
		return fmt.Errorf("writing theme: %w", err)
	}
	return nil
}

func (u *User) clone() *User {
	c := *u
	if u.Profile != nil {
		p := *u.Profile
		c.Profile = &p
	}
	return &c
}
