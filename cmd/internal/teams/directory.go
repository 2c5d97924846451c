package teams

import (
	"context"
	"fmt"
	"sync"
)

// Directory caches the signed-in user's teams and applies mutation results
// locally so callers never need to refetch after a change.
type Directory struct {
	svc *Service

	mu     sync.RWMutex
	teams  []Team
	loaded bool
}

// NewDirectory returns an empty Directory backed by svc.
func NewDirectory(svc *Service) *Directory { return &Directory{svc: svc} }

// Teams returns a copy of the cached teams.
func (d *Directory) Teams() []Team {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneTeams(d.teams)
}

// Loaded reports whether Load has succeeded since the last Reset.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Team returns the cached team with id.
func (d *Directory) Team(id int64) (Team, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.teams {
		if t.ID == id {
			return cloneTeam(t), true
		}
	}
	return Team{}, false
}

// Load replaces the cache with the server's list.
func (d *Directory) Load(ctx context.Context) ([]Team, error) {
	list, err := d.svc.List(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.teams = cloneTeams(list)
	d.loaded = true
	d.mu.Unlock()
	return list, nil
}

// Create creates a team and puts it first in the cache.
func (d *Directory) Create(ctx context.Context, name string) (Team, error) {
	t, err := d.svc.Create(ctx, name)
	if err != nil {
		return Team{}, err
	}

	d.mu.Lock()
	d.teams = append([]Team{cloneTeam(t)}, d.teams...)
	d.mu.Unlock()
	return t, nil
}

// Invite invites a user and records the new member in the cached team.
func (d *Directory) Invite(ctx context.Context, teamID int64, in Invite) (Member, error) {
	m, err := d.svc.Invite(ctx, teamID, in)
	if err != nil {
		return Member{}, err
	}
	d.setMember(teamID, m)
	return m, nil
}

// UpdateMember sends only the fields that differ from the cached member.
// role or status left empty keep their current value. ErrNoChanges is
// returned when nothing differs.
func (d *Directory) UpdateMember(ctx context.Context, teamID, memberID int64, role, status string) (Member, error) {
	t, ok := d.Team(teamID)
	if !ok {
		return Member{}, fmt.Errorf("team %d is not loaded", teamID)
	}
	cur, ok := t.Member(memberID)
	if !ok {
		return Member{}, fmt.Errorf("user %d is not a member of team %d", memberID, teamID)
	}

	var u MemberUpdate
	if role != "" && role != cur.Role {
		u.Role = &role
	}
	if status != "" && status != cur.Status {
		u.Status = &status
	}
	if u.Empty() {
		return Member{}, ErrNoChanges
	}

	m, err := d.svc.UpdateMember(ctx, teamID, memberID, u)
	if err != nil {
		return Member{}, err
	}
	d.setMember(teamID, m)
	return m, nil
}

// Reset drops the cache (on logout).
func (d *Directory) Reset() {
	d.mu.Lock()
	d.teams = nil
	d.loaded = false
	d.mu.Unlock()
}

// setMember replaces the member with the same user id, or inserts it first.
func (d *Directory) setMember(teamID int64, m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.teams {
		if d.teams[i].ID != teamID {
			continue
		}
		members := d.teams[i].Members
		for j := range members {
			if members[j].UserID == m.UserID {
				members[j] = m
				return
			}
		}
		d.teams[i].Members = append([]Member{m}, members...)
		return
	}
}

func cloneTeam(t Team) Team {
	t.Members = append([]Member(nil), t.Members...)
	return t
}

func cloneTeams(in []Team) []Team {
	if in == nil {
		return nil
	}
	out := make([]Team, len(in))
	for i, t := range in {
		out[i] = cloneTeam(t)
	}
	return out
}
