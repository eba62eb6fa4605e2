// Package stub provides a scripted teamsource.Connector for tests and local runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"hm-tracker/internal/teamsource"
)

// Account is the scripted state of one site account.
type Account struct {
	Password string
	Teams    map[string]*Team // keyed by team code

	// Failure injection.
	ConnectErr    error // returned by Connect
	AutoLineupErr error // returned by ApplyAutoLineup
}

// Team is one scripted roster.
type Team struct {
	Name    string
	Players []int64
}

// Connector implements teamsource.Connector over in-memory accounts.
type Connector struct {
	mu          sync.Mutex
	accounts    map[string]*Account
	connects    map[string]int
	autoLineups map[string]int
}

// NewConnector creates a new stub connector.
func NewConnector() *Connector {
	return &Connector{
		accounts:    make(map[string]*Account),
		connects:    make(map[string]int),
		autoLineups: make(map[string]int),
	}
}

// AddAccount registers or replaces the account for email.
func (c *Connector) AddAccount(email string, account *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[email] = account
}

// SetRoster replaces the players of one team, creating it if needed.
func (c *Connector) SetRoster(email, teamCode string, players []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	account, ok := c.accounts[email]
	if !ok {
		return
	}
	if account.Teams == nil {
		account.Teams = make(map[string]*Team)
	}
	team, ok := account.Teams[teamCode]
	if !ok {
		team = &Team{Name: teamCode}
		account.Teams[teamCode] = team
	}
	team.Players = append([]int64(nil), players...)
}

// Connects returns how many sessions were opened for email.
func (c *Connector) Connects(email string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects[email]
}

// AutoLineups returns how many teams of email had their lineup applied.
func (c *Connector) AutoLineups(email string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoLineups[email]
}

// Connect logs into a scripted account.
func (c *Connector) Connect(_ context.Context, creds teamsource.Credentials) (teamsource.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	account, ok := c.accounts[creds.Email]
	if !ok || account.Password != creds.Password {
		return nil, fmt.Errorf("login %s: %w", creds.Email, teamsource.ErrInvalidCredentials)
	}
	if account.ConnectErr != nil {
		return nil, fmt.Errorf("login %s: %w", creds.Email, account.ConnectErr)
	}
	c.connects[creds.Email]++
	return &session{connector: c, email: creds.Email}, nil
}

// session implements teamsource.Session for one account.
type session struct {
	connector *Connector
	email     string
	selected  string
	closed    bool
}

func (s *session) account() (*Account, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed: %w", teamsource.ErrConnection)
	}
	return s.connector.accounts[s.email], nil
}

func (s *session) ListTeams(_ context.Context) ([]teamsource.Team, error) {
	s.connector.mu.Lock()
	defer s.connector.mu.Unlock()

	account, err := s.account()
	if err != nil {
		return nil, err
	}
	teams := make([]teamsource.Team, 0, len(account.Teams))
	for code, team := range account.Teams {
		teams = append(teams, teamsource.Team{Code: code, Name: team.Name})
	}
	teamsource.SortTeams(teams)
	return teams, nil
}

func (s *session) SelectTeam(_ context.Context, code string) error {
	s.connector.mu.Lock()
	defer s.connector.mu.Unlock()

	account, err := s.account()
	if err != nil {
		return err
	}
	if _, ok := account.Teams[code]; !ok {
		return fmt.Errorf("select %s: %w", code, teamsource.ErrUnknownTeam)
	}
	s.selected = code
	return nil
}

func (s *session) CurrentRoster(_ context.Context) ([]int64, error) {
	s.connector.mu.Lock()
	defer s.connector.mu.Unlock()

	account, err := s.account()
	if err != nil {
		return nil, err
	}
	team, ok := account.Teams[s.selected]
	if !ok {
		return nil, fmt.Errorf("no team selected: %w", teamsource.ErrUnknownTeam)
	}
	return append([]int64(nil), team.Players...), nil
}

func (s *session) ApplyAutoLineup(_ context.Context) error {
	s.connector.mu.Lock()
	defer s.connector.mu.Unlock()

	account, err := s.account()
	if err != nil {
		return err
	}
	if _, ok := account.Teams[s.selected]; !ok {
		return fmt.Errorf("no team selected: %w", teamsource.ErrUnknownTeam)
	}
	if account.AutoLineupErr != nil {
		return account.AutoLineupErr
	}
	s.connector.autoLineups[s.email]++
	return nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// Verify interface compliance at compile time.
var _ teamsource.Connector = (*Connector)(nil)
