package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"teamdash/cmd/internal/account"
	"teamdash/cmd/internal/auth/session"
	"teamdash/cmd/internal/notify"
	"teamdash/cmd/internal/teams"
	v1 "teamdash/contracts/notifications/v1"
)

func printUser(w io.Writer, u account.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", u.DisplayName())
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	fmt.Fprintf(tw, "Verified:\t%s\n", yesPending(u.IsEmailVerified))
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(tw, "Member since:\t%s\n", u.CreatedAt.Format("2006-01-02"))
	}
	_ = tw.Flush()
}

func printTokenStatus(w io.Writer, st session.TokenStatus, now time.Time) {
	switch {
	case st.ExpiresAt.IsZero():
		fmt.Fprintln(w, "Access token: no expiry")
	case st.Expired(now):
		fmt.Fprintf(w, "Access token: expired %s ago\n", now.Sub(st.ExpiresAt).Round(time.Second))
	default:
		fmt.Fprintf(w, "Access token: expires in %s\n", st.Remaining(now).Round(time.Second))
	}
	if !st.HasRefresh {
		fmt.Fprintln(w, "Refresh token: missing")
	}
}

func printTeams(w io.Writer, list []teams.Team, me int64) {
	if len(list) == 0 {
		fmt.Fprintln(w, "You are not a member of any team yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tYOUR ROLE\tMEMBERS\tCREATED")
	for _, t := range list {
		role := "-"
		if m, ok := t.Member(me); ok {
			role = m.Role
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.ID, t.Name, role, len(t.Members), formatDate(t.CreatedAt))
	}
	_ = tw.Flush()
}

func printMembers(w io.Writer, t teams.Team) {
	fmt.Fprintf(w, "\n%s (#%d)\n", t.Name, t.ID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tEMAIL\tROLE\tSTATUS\tJOINED")
	for _, m := range t.Members {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.UserID, m.Email, m.Role, m.Status, formatDate(m.JoinedAt))
	}
	_ = tw.Flush()
}

func printEvent(w io.Writer, ev notify.Event) {
	fmt.Fprintf(w, "[%s] %s: %s\n", ev.ReceivedAt.Format("15:04:05"), eventTitle(ev.Event), eventMessage(ev))
}

// eventTitle turns "team_invitation" into "Team Invitation".
func eventTitle(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func eventMessage(ev notify.Event) string {
	if msg, ok := ev.Payload["message"].(string); ok {
		return msg
	}

	switch ev.Event {
	case v1.EventProfileUpdated:
		return "Your profile was updated."
	case v1.EventEmailVerified:
		return "Email verified successfully."
	case v1.EventTeamInvitation:
		return fmt.Sprintf("You have a new %s invitation for %s.",
			payloadString(ev.Payload, "role", teams.RoleMember),
			payloadString(ev.Payload, "team_name", "a team"))
	case v1.EventTeamMembershipUpdated:
		return fmt.Sprintf("Your membership in %s was %s.",
			payloadString(ev.Payload, "team_name", "team"),
			payloadString(ev.Payload, "status", "updated"))
	default:
		return "You have a new update."
	}
}

func payloadString(m v1.Message, key, fallback string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return fallback
}

func yesPending(ok bool) string {
	if ok {
		return "Yes"
	}
	return "Pending"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
