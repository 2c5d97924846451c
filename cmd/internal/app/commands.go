package app

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"teamdash/cmd/internal/account"
	"teamdash/cmd/internal/auth/session"
	"teamdash/cmd/internal/teams"

	"golang.org/x/sync/errgroup"
)

type command struct {
	name    string
	summary string
	// needsSession hydrates the session and requires a signed-in user.
	needsSession bool
	run          func(ctx context.Context, args []string) error
}

func (a *App) commands() []command {
	return []command{
		{name: "login", summary: "Sign in and store the session tokens", run: a.cmdLogin},
		{name: "register", summary: "Create an account and sign in", run: a.cmdRegister},
		{name: "logout", summary: "Forget the stored session", run: a.cmdLogout},
		{name: "whoami", summary: "Show the signed-in user and token status", needsSession: true, run: a.cmdWhoami},
		{name: "profile-update", summary: "Change your first or last name", needsSession: true, run: a.cmdProfileUpdate},
		{name: "verify-email", summary: "Confirm an email address with a verification token", run: a.cmdVerifyEmail},
		{name: "resend-verification", summary: "Send a new verification email", run: a.cmdResendVerification},
		{name: "forgot-password", summary: "Request a password reset email", run: a.cmdForgotPassword},
		{name: "reset-password", summary: "Set a new password with a reset token", run: a.cmdResetPassword},
		{name: "teams", summary: "List your teams", needsSession: true, run: a.cmdTeams},
		{name: "team-create", summary: "Create a team", needsSession: true, run: a.cmdTeamCreate},
		{name: "invite", summary: "Invite a user to a team", needsSession: true, run: a.cmdInvite},
		{name: "member-update", summary: "Change a member's role or status", needsSession: true, run: a.cmdMemberUpdate},
		{name: "dashboard", summary: "Show your profile and teams", needsSession: true, run: a.cmdDashboard},
		{name: "watch", summary: "Stream live notifications", needsSession: true, run: a.cmdWatch},
	}
}

// Execute runs the command named by args[0].
func (a *App) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return fmt.Errorf("%w: missing command", ErrUsage)
	}
	switch args[0] {
	case "help", "-h", "-help", "--help":
		a.usage()
		return nil
	}

	for _, c := range a.commands() {
		if c.name != args[0] {
			continue
		}
		a.log.Debug("command.start", "command", c.name)
		if c.needsSession {
			if err := a.requireSession(ctx); err != nil {
				return err
			}
		}
		err := c.run(ctx, args[1:])
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	a.usage()
	return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "Usage: teamdash <command> [flags]")
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Commands:")
	for _, c := range a.commands() {
		fmt.Fprintf(a.out, "  %-20s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Run `teamdash <command> -h` for command flags.")
}

func (a *App) requireSession(ctx context.Context) error {
	if err := a.session.Hydrate(ctx); err != nil {
		return a.fail(err, "Unable to load your profile.")
	}
	if _, err := a.session.RequireUser(); err != nil {
		return a.fail(err, NotLoggedInMessage)
	}
	return nil
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("teamdash "+name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return nil
}

// readPassword returns flagVal, or the first line of stdin when fromStdin is set.
func (a *App) readPassword(flagVal string, fromStdin bool) (string, error) {
	if flagVal != "" || !fromStdin {
		return flagVal, nil
	}
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "account email")
	pw := fs.String("password", "", "account password")
	pwStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	secret, err := a.readPassword(*pw, *pwStdin)
	if err != nil {
		return err
	}

	u, err := a.session.Login(ctx, account.Credentials{Email: *email, Password: secret})
	if err != nil {
		return a.fail(err, "Incorrect credentials.")
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", u.DisplayName())
	if !u.IsEmailVerified {
		fmt.Fprintln(a.out, "Your email address is not verified yet.")
	}
	return nil
}

func (a *App) cmdRegister(ctx context.Context, args []string) error {
	fs := a.flagSet("register")
	email := fs.String("email", "", "account email")
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name (optional)")
	pw := fs.String("password", "", "account password")
	pwStdin := fs.Bool("password-stdin", false, "read the password from stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	secret, err := a.readPassword(*pw, *pwStdin)
	if err != nil {
		return err
	}

	u, err := a.session.Register(ctx, account.Registration{
		Email:     *email,
		Password:  secret,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return a.fail(err, "Unable to create your account. Email may already exist.")
	}
	fmt.Fprintf(a.out, "Account created for %s.\n", u.Email)
	if !u.IsEmailVerified {
		fmt.Fprintln(a.out, "Check your inbox to verify your email address.")
	}
	return nil
}

func (a *App) cmdLogout(ctx context.Context, args []string) error {
	if err := parseFlags(a.flagSet("logout"), args); err != nil {
		return err
	}
	if err := a.session.Logout(ctx); err != nil {
		return a.fail(err, "Unable to clear the stored session.")
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func (a *App) cmdWhoami(ctx context.Context, args []string) error {
	if err := parseFlags(a.flagSet("whoami"), args); err != nil {
		return err
	}
	u, err := a.session.RequireUser()
	if err != nil {
		return a.fail(err, NotLoggedInMessage)
	}
	printUser(a.out, u)

	st, err := a.session.TokenStatus(ctx)
	switch {
	case err == nil:
		printTokenStatus(a.out, st, time.Now())
	case errors.Is(err, session.ErrMalformedToken):
		fmt.Fprintln(a.out, "Access token: not a JWT")
	default:
		a.log.Debug("auth.token_status.fail", "err", err)
	}
	return nil
}

func (a *App) cmdProfileUpdate(ctx context.Context, args []string) error {
	fs := a.flagSet("profile-update")
	first := fs.String("first-name", "", "new first name")
	last := fs.String("last-name", "", "new last name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	// Only flags given on the command line are sent.
	var p account.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "first-name":
			p.FirstName = first
		case "last-name":
			p.LastName = last
		}
	})

	u, err := a.session.UpdateProfile(ctx, p)
	if errors.Is(err, account.ErrNoChanges) {
		return &CommandError{Msg: "Update a field before saving.", Err: err}
	}
	if err != nil {
		return a.fail(err, "Unable to update profile right now.")
	}
	fmt.Fprintln(a.out, "Profile details updated.")
	printUser(a.out, u)
	return nil
}

func (a *App) cmdVerifyEmail(ctx context.Context, args []string) error {
	fs := a.flagSet("verify-email")
	token := fs.String("token", "", "verification token from the email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	msg, err := a.session.Accounts().VerifyEmail(ctx, *token)
	if err != nil {
		return a.fail(err, "Verification failed. Try requesting a new email.")
	}
	fmt.Fprintln(a.out, orDefault(msg, "Email verified! You can now sign in."))
	return nil
}

func (a *App) cmdResendVerification(ctx context.Context, args []string) error {
	fs := a.flagSet("resend-verification")
	email := fs.String("email", "", "account email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	msg, err := a.session.Accounts().ResendVerification(ctx, *email)
	if err != nil {
		return a.fail(err, "Unable to send the verification email.")
	}
	fmt.Fprintln(a.out, orDefault(msg, "Verification email sent. Check your inbox."))
	return nil
}

func (a *App) cmdForgotPassword(ctx context.Context, args []string) error {
	fs := a.flagSet("forgot-password")
	email := fs.String("email", "", "account email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	msg, err := a.session.Accounts().ForgotPassword(ctx, *email)
	if err != nil {
		return a.fail(err, "Unable to request a password reset.")
	}
	fmt.Fprintln(a.out, orDefault(msg, "If an account exists for that email, a reset link has been sent."))
	return nil
}

func (a *App) cmdResetPassword(ctx context.Context, args []string) error {
	fs := a.flagSet("reset-password")
	token := fs.String("token", "", "reset token from the email")
	pw := fs.String("password", "", "new password")
	pwStdin := fs.Bool("password-stdin", false, "read the new password from stdin")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	secret, err := a.readPassword(*pw, *pwStdin)
	if err != nil {
		return err
	}
	msg, err := a.session.Accounts().ResetPassword(ctx, account.PasswordReset{Token: *token, Password: secret})
	if err != nil {
		return a.fail(err, "Unable to reset password. Check your token or request a new email.")
	}
	fmt.Fprintln(a.out, orDefault(msg, "Password updated."))
	return nil
}

func (a *App) cmdTeams(ctx context.Context, args []string) error {
	fs := a.flagSet("teams")
	members := fs.Bool("members", false, "list the members of each team")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	list, err := a.teams.Load(ctx)
	if err != nil {
		return a.fail(err, "Unable to load your teams.")
	}
	me, _ := a.session.User()
	printTeams(a.out, list, me.ID)
	if *members {
		for _, t := range list {
			printMembers(a.out, t)
		}
	}
	return nil
}

func (a *App) cmdTeamCreate(ctx context.Context, args []string) error {
	fs := a.flagSet("team-create")
	name := fs.String("name", "", "team name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	t, err := a.teams.Create(ctx, *name)
	if err != nil {
		return a.fail(err, "Unable to create the team.")
	}
	fmt.Fprintln(a.out, "Team created successfully.")
	printMembers(a.out, t)
	return nil
}

func (a *App) cmdInvite(ctx context.Context, args []string) error {
	fs := a.flagSet("invite")
	teamID := fs.Int64("team", 0, "team id")
	email := fs.String("email", "", "email of the user to invite")
	role := fs.String("role", teams.RoleMember, "role: "+strings.Join(teams.Roles, ", "))
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return &CommandError{Msg: "Provide an email to invite."}
	}

	m, err := a.teams.Invite(ctx, *teamID, teams.Invite{Email: *email, Role: *role})
	if err != nil {
		return a.fail(err, "Unable to send invitation.")
	}
	fmt.Fprintf(a.out, "Invitation sent. %s joined as %s.\n", m.Email, m.Role)
	return nil
}

func (a *App) cmdMemberUpdate(ctx context.Context, args []string) error {
	fs := a.flagSet("member-update")
	teamID := fs.Int64("team", 0, "team id")
	memberID := fs.Int64("member", 0, "user id of the member")
	role := fs.String("role", "", "new role: "+strings.Join(teams.Roles, ", "))
	status := fs.String("status", "", "new status: "+strings.Join(teams.Statuses, ", "))
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	// Changes are computed against the current membership.
	if _, err := a.teams.Load(ctx); err != nil {
		return a.fail(err, "Unable to load your teams.")
	}

	m, err := a.teams.UpdateMember(ctx, *teamID, *memberID, *role, *status)
	if errors.Is(err, teams.ErrNoChanges) {
		return &CommandError{Msg: "Update a field before saving.", Err: err}
	}
	if err != nil {
		return a.fail(err, "Could not update member.")
	}
	fmt.Fprintf(a.out, "Member updated. %s is now %s (%s).\n", m.Email, m.Role, m.Status)
	return nil
}

// cmdDashboard prints the profile and team overview. Teams and token status
// are fetched concurrently.
func (a *App) cmdDashboard(ctx context.Context, args []string) error {
	if err := parseFlags(a.flagSet("dashboard"), args); err != nil {
		return err
	}
	u, err := a.session.RequireUser()
	if err != nil {
		return a.fail(err, NotLoggedInMessage)
	}

	var (
		list []teams.Team
		st   session.TokenStatus
		stOK bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := a.teams.Load(gctx)
		if err != nil {
			return a.fail(err, "Unable to load your teams.")
		}
		list = l
		return nil
	})
	g.Go(func() error {
		s, err := a.session.TokenStatus(gctx)
		if err != nil {
			a.log.Debug("auth.token_status.fail", "err", err)
			return nil
		}
		st, stOK = s, true
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Welcome back, %s.\n\n", u.DisplayName())
	printUser(a.out, u)
	if stOK {
		printTokenStatus(a.out, st, time.Now())
	}
	fmt.Fprintln(a.out)
	printTeams(a.out, list, u.ID)
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
