package teams

import "time"

// Roles a member can hold.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Membership statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Roles and Statuses list the accepted values in display order.
var (
	Roles    = []string{RoleOwner, RoleAdmin, RoleMember}
	Statuses = []string{StatusActive, StatusInactive, StatusSuspended}
)

// Field limits enforced by the API.
const (
	MaxTeamName = 127
	MaxRole     = 32
)

// Member is one team membership.
type Member struct {
	UserID      int64     `json:"user_id"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	InvitedByID *int64    `json:"invited_by_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Team is a team with its members.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Members   []Member  `json:"members"`
}

// Member returns the membership of userID, if any.
func (t Team) Member(userID int64) (Member, bool) {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// CanManage reports whether userID may invite and edit members.
func (t Team) CanManage(userID int64) bool {
	m, ok := t.Member(userID)
	return ok && (m.Role == RoleOwner || m.Role == RoleAdmin)
}

// Invite is the invite form.
type Invite struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// MemberUpdate carries only the fields to change; nil means unchanged.
type MemberUpdate struct {
	Role   *string `json:"role,omitempty"`
	Status *string `json:"status,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u MemberUpdate) Empty() bool { return u.Role == nil && u.Status == nil }

type createRequest struct {
	Name string `json:"name"`
}
