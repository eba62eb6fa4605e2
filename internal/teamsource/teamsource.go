// Package teamsource defines the client side of the fantasy-league site:
// log in with a manager's credentials, list and select teams, read the
// current roster and apply the automatic lineup.
package teamsource

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Errors surfaced by connectors. Implementations wrap them with context.
var (
	// ErrConnection is returned when the site cannot be reached or a call fails.
	ErrConnection = errors.New("team source connection failed")

	// ErrInvalidCredentials is returned when the site rejects a login.
	ErrInvalidCredentials = errors.New("invalid team source credentials")

	// ErrUnknownTeam is returned when selecting a team the account does not own.
	ErrUnknownTeam = errors.New("unknown team")
)

// Credentials identify a manager account on the site.
type Credentials struct {
	Email    string
	Password string
}

// Team is one fantasy roster owned by an account.
type Team struct {
	Code string // grouping key, e.g. "NL"
	Name string
}

// Connector opens authenticated sessions.
type Connector interface {
	// Connect logs in. Returns an error wrapping ErrInvalidCredentials or ErrConnection.
	Connect(ctx context.Context, creds Credentials) (Session, error)
}

// Session is one logged-in conversation with the site. Not safe for
// concurrent use; SelectTeam changes what CurrentRoster and ApplyAutoLineup act on.
type Session interface {
	// ListTeams returns the account's teams, ordered by code.
	ListTeams(ctx context.Context) ([]Team, error)

	// SelectTeam makes code the current team.
	SelectTeam(ctx context.Context, code string) error

	// CurrentRoster returns the player ids of the current team.
	CurrentRoster(ctx context.Context) ([]int64, error)

	// ApplyAutoLineup lets the site pick the lineup of the current team.
	ApplyAutoLineup(ctx context.Context) error

	// Close ends the session.
	Close() error
}

// FetchRosters selects every team in turn and returns its current roster by team code.
func FetchRosters(ctx context.Context, s Session) (map[string][]int64, error) {
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	rosters := make(map[string][]int64, len(teams))
	for _, team := range teams {
		if err := s.SelectTeam(ctx, team.Code); err != nil {
			return nil, fmt.Errorf("select team %s: %w", team.Code, err)
		}
		players, err := s.CurrentRoster(ctx)
		if err != nil {
			return nil, fmt.Errorf("roster of team %s: %w", team.Code, err)
		}
		rosters[team.Code] = players
	}
	return rosters, nil
}

// ApplyAutoLineupAll selects every team in turn and applies its automatic
// lineup. Returns the number of teams processed.
func ApplyAutoLineupAll(ctx context.Context, s Session) (int, error) {
	teams, err := s.ListTeams(ctx)
	if err != nil {
		return 0, fmt.Errorf("list teams: %w", err)
	}

	for i, team := range teams {
		if err := s.SelectTeam(ctx, team.Code); err != nil {
			return i, fmt.Errorf("select team %s: %w", team.Code, err)
		}
		if err := s.ApplyAutoLineup(ctx); err != nil {
			return i, fmt.Errorf("auto lineup team %s: %w", team.Code, err)
		}
	}
	return len(teams), nil
}

// SortTeams orders teams by code.
func SortTeams(teams []Team) {
	sort.Slice(teams, func(i, j int) bool {
		return teams[i].Code < teams[j].Code
	})
}
