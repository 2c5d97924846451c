// Package teams wraps the /teams endpoints and keeps a local team directory
// in sync with the results.
package teams

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/form"
)

// ErrNoChanges is returned when a member update would not change anything.
var ErrNoChanges = errors.New("no changes to save")

// Doer sends API requests. *apiclient.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// Service calls the team endpoints. Inputs are validated before any request.
type Service struct {
	api Doer
}

// NewService returns a Service.
func NewService(api Doer) *Service { return &Service{api: api} }

// List returns the teams the signed-in user belongs to.
func (s *Service) List(ctx context.Context) ([]Team, error) {
	out := []Team{}
	err := s.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/teams"}, &out)
	return out, err
}

// Create creates a team owned by the signed-in user.
func (s *Service) Create(ctx context.Context, name string) (Team, error) {
	name = strings.TrimSpace(name)

	var c form.Checker
	c.Length("name", name, 1, MaxTeamName)
	if err := c.Err(); err != nil {
		return Team{}, err
	}

	var out Team
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/teams",
		Body:   createRequest{Name: name},
	}, &out)
	return out, err
}

// Invite adds an existing user to a team. An empty role means member.
func (s *Service) Invite(ctx context.Context, teamID int64, in Invite) (Member, error) {
	in.Email = form.NormalizeEmail(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	if in.Role == "" {
		in.Role = RoleMember
	}

	var c form.Checker
	c.Positive("team_id", teamID)
	c.Email("email", in.Email)
	c.Length("role", in.Role, 1, MaxRole)
	c.OneOf("role", in.Role, Roles...)
	if err := c.Err(); err != nil {
		return Member{}, err
	}

	var out Member
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/teams/%d/invite", teamID),
		Body:   in,
	}, &out)
	return out, err
}

// UpdateMember changes a member's role and/or status.
func (s *Service) UpdateMember(ctx context.Context, teamID, memberID int64, u MemberUpdate) (Member, error) {
	if u.Empty() {
		return Member{}, ErrNoChanges
	}

	var c form.Checker
	c.Positive("team_id", teamID)
	c.Positive("member_id", memberID)
	if u.Role != nil {
		c.Length("role", *u.Role, 1, MaxRole)
		c.OneOf("role", *u.Role, Roles...)
	}
	if u.Status != nil {
		c.OneOf("status", *u.Status, Statuses...)
	}
	if err := c.Err(); err != nil {
		return Member{}, err
	}

	var out Member
	err := s.api.Do(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   fmt.Sprintf("/teams/%d/members/%d", teamID, memberID),
		Body:   u,
	}, &out)
	return out, err
}
