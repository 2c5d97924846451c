package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"teamdash/cmd/internal/apiclient"
	"teamdash/cmd/internal/apitest"
	"teamdash/cmd/internal/tokenstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cli runs commands the way separate process invocations would: every call
// builds a fresh App over the same config.
type cli struct {
	t   *testing.T
	cfg Config
}

func newCLI(t *testing.T, srv *apitest.Server) *cli {
	t.Helper()
	cfg := DefaultConfig()
	cfg.APIBaseURL = srv.BaseURL()
	cfg.TokenFile = filepath.Join(t.TempDir(), "tokens.json")
	cfg.Heartbeat = time.Hour
	return &cli{t: t, cfg: cfg}
}

func (c *cli) run(args ...string) (string, error) {
	return c.runWithInput("", args...)
}

func (c *cli) runWithInput(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), c.cfg, discardLogger(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "%v: %s", args, out)
	return out
}

func commandMessage(t *testing.T, err error) string {
	t.Helper()
	var ce *CommandError
	require.True(t, errors.As(err, &ce), "want *CommandError, got %T: %v", err, err)
	return ce.Msg
}

func TestExecute_Usage(t *testing.T) {
	t.Parallel()

	c := newCLI(t, apitest.New(t))

	out, err := c.run("help")
	require.NoError(t, err)
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "member-update")

	_, err = c.run("frobnicate")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Equal(t, 2, ExitCode(err))

	_, err = c.run()
	assert.ErrorIs(t, err, ErrUsage)

	_, err = c.run("login", "-nope")
	assert.ErrorIs(t, err, ErrUsage)

	out, err = c.run("login", "-h")
	require.NoError(t, err)
	assert.Contains(t, out, "-password-stdin")
}

func TestLoginWhoamiLogout(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("dana@example.com", "dana-password", true)
	c := newCLI(t, srv)

	out := c.mustRun("login", "-email", "Dana@Example.com", "-password", "dana-password")
	assert.Contains(t, out, "Logged in as Test.")

	raw, err := os.ReadFile(c.cfg.TokenFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "accessToken")

	out = c.mustRun("whoami")
	assert.Contains(t, out, "dana@example.com")
	assert.Contains(t, out, "Verified:")
	assert.Contains(t, out, "Access token: expires in")

	assert.Contains(t, c.mustRun("logout"), "Logged out.")

	_, err = c.run("whoami")
	assert.Equal(t, NotLoggedInMessage, commandMessage(t, err))
	assert.Equal(t, 1, ExitCode(err))
}

func TestProtectedCommand_WithoutSessionSkipsAPI(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	c := newCLI(t, srv)

	_, err := c.run("teams")
	assert.Equal(t, NotLoggedInMessage, commandMessage(t, err))
	assert.Empty(t, srv.Requests())
}

func TestLogin_Failures(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("erin@example.com", "erin-password", true)
	c := newCLI(t, srv)

	_, err := c.run("login", "-email", "not-an-email", "-password", "x")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Fields.Field("email"))
	assert.Contains(t, err.Error(), "email:")
	assert.Empty(t, srv.Requests(), "validation errors never reach the API")

	_, err = c.run("login", "-email", "erin@example.com", "-password", "wrong-password")
	assert.True(t, apiclient.IsStatus(err, 401))
	assert.Equal(t, 0, srv.RefreshCalls(), "a failed login is not a reason to refresh")
}

func TestRegisterVerifyAndReset(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	c := newCLI(t, srv)

	out, err := c.runWithInput("frank-password\n", "register",
		"-email", "frank@example.com", "-first-name", "Frank", "-password-stdin")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Account created for frank@example.com.")
	assert.Contains(t, out, "verify your email")

	out = c.mustRun("verify-email", "-token", srv.VerificationToken("frank@example.com"))
	assert.Contains(t, out, "Email verified successfully.")

	_, err = c.run("resend-verification", "-email", "frank@example.com")
	assert.Error(t, err, "already verified")

	out = c.mustRun("forgot-password", "-email", "frank@example.com")
	assert.Contains(t, out, "If an account exists")

	_, err = c.run("reset-password", "-token", "bogus", "-password", "brand-new-password")
	require.Error(t, err)

	out = c.mustRun("reset-password", "-token", srv.ResetToken("frank@example.com"), "-password", "brand-new-password")
	assert.Contains(t, out, "Password updated successfully.")

	c.mustRun("logout")
	c.mustRun("login", "-email", "frank@example.com", "-password", "brand-new-password")
}

func TestProfileUpdate_SendsOnlyGivenFlags(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("gina@example.com", "gina-password", true)
	c := newCLI(t, srv)
	c.mustRun("login", "-email", "gina@example.com", "-password", "gina-password")

	_, err := c.run("profile-update")
	assert.Equal(t, "Update a field before saving.", commandMessage(t, err))

	out := c.mustRun("profile-update", "-last-name", "Grey")
	assert.Contains(t, out, "Profile details updated.")
	assert.Contains(t, out, "Test Grey")

	reqs := srv.RequestsTo("/user/me")
	last := reqs[len(reqs)-1]
	assert.Equal(t, "PATCH", last.Method)
	assert.NotContains(t, last.Body, "first_name")
}

func TestTeamCommands(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("hana@example.com", "hana-password", true)
	ivanID := srv.AddUser("ivan@example.com", "ivan-password", true)
	c := newCLI(t, srv)
	c.mustRun("login", "-email", "hana@example.com", "-password", "hana-password")

	assert.Contains(t, c.mustRun("teams"), "You are not a member of any team yet.")

	out := c.mustRun("team-create", "-name", "Alpha")
	assert.Contains(t, out, "Team created successfully.")

	_, err := c.run("team-create", "-name", "Alpha")
	assert.Equal(t, "A team with that name already exists.", commandMessage(t, err))

	_, err = c.run("team-create", "-name", "  ")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Fields)

	_, err = c.run("invite", "-team", "1")
	assert.Equal(t, "Provide an email to invite.", commandMessage(t, err))

	_, err = c.run("invite", "-team", "1", "-email", "nobody@example.com")
	assert.Equal(t, "Invited user not found.", commandMessage(t, err))

	out = c.mustRun("invite", "-team", "1", "-email", "Ivan@Example.com")
	assert.Contains(t, out, "Invitation sent.")

	member := strconv.FormatInt(ivanID, 10)
	_, err = c.run("member-update", "-team", "1", "-member", member, "-status", "active")
	assert.Equal(t, "Update a field before saving.", commandMessage(t, err))

	out = c.mustRun("member-update", "-team", "1", "-member", member, "-status", "inactive")
	assert.Contains(t, out, "Member updated.")

	patches := srv.RequestsTo("/teams/1/members/" + member)
	require.Len(t, patches, 1)
	assert.NotContains(t, patches[0].Body, "role")

	out = c.mustRun("teams", "-members")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "ivan@example.com")
	assert.Contains(t, out, "inactive")

	out = c.mustRun("dashboard")
	assert.Contains(t, out, "Welcome back, Test.")
	assert.Contains(t, out, "Alpha")
}

func TestExpiredAccessToken_RefreshedTransparently(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("jo@example.com", "jo-password", true)
	c := newCLI(t, srv)
	c.mustRun("login", "-email", "jo@example.com", "-password", "jo-password")

	srv.ExpireAccessTokens()
	assert.Contains(t, c.mustRun("teams"), "You are not a member")
	assert.Equal(t, 1, srv.RefreshCalls())

	c.mustRun("whoami")
	assert.Equal(t, 1, srv.RefreshCalls(), "the rotated pair was persisted")
}

func TestSessionExpired_ClearsStoredTokens(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("kim@example.com", "kim-password", true)
	c := newCLI(t, srv)
	c.mustRun("login", "-email", "kim@example.com", "-password", "kim-password")

	srv.ExpireAccessTokens()
	srv.RevokeRefreshTokens()

	_, err := c.run("teams")
	assert.Equal(t, apiclient.SessionExpiredMessage, commandMessage(t, err))
	assert.ErrorIs(t, err, apiclient.ErrSessionExpired)

	_, err = c.run("whoami")
	assert.Equal(t, NotLoggedInMessage, commandMessage(t, err))
}

func TestVaultSealsTokenFile(t *testing.T) {
	t.Setenv("TEAMDASH_VAULT_MEMORY_KIB", "8192")
	t.Setenv("TEAMDASH_VAULT_ITERATIONS", "1")

	srv := apitest.New(t)
	srv.AddUser("lee@example.com", "lee-password", true)
	c := newCLI(t, srv)
	c.cfg.VaultPassphrase = "a long enough passphrase"
	c.cfg.RequireVault = true

	c.mustRun("login", "-email", "lee@example.com", "-password", "lee-password")

	raw, err := os.ReadFile(c.cfg.TokenFile)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "accessToken")

	assert.Contains(t, c.mustRun("whoami"), "lee@example.com")

	c.cfg.VaultPassphrase = "a different passphrase"
	_, err = c.run("whoami")
	assert.Error(t, err)
}

func TestRedisTokenStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	srv := apitest.New(t)
	srv.AddUser("max@example.com", "max-password", true)
	c := newCLI(t, srv)
	c.cfg.TokenStore = StoreRedis
	c.cfg.RedisAddr = mr.Addr()
	c.cfg.TokenProfile = "work"

	c.mustRun("login", "-email", "max@example.com", "-password", "max-password")

	access, err := mr.Get("teamdash:work:" + tokenstore.KeyAccess)
	require.NoError(t, err)
	assert.NotEmpty(t, access)

	assert.Contains(t, c.mustRun("whoami"), "max@example.com")

	c.mustRun("logout")
	assert.False(t, mr.Exists("teamdash:work:"+tokenstore.KeyAccess))
}

// syncBuffer is written by stream goroutines and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_PrintsNotificationsUntilServerCloses(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	srv.AddUser("nia@example.com", "nia-password", true)
	omarID := srv.AddUser("omar@example.com", "omar-password", true)

	owner := newCLI(t, srv)
	owner.mustRun("login", "-email", "nia@example.com", "-password", "nia-password")
	owner.mustRun("team-create", "-name", "Ops")

	watcher := newCLI(t, srv)
	watcher.mustRun("login", "-email", "omar@example.com", "-password", "omar-password")

	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- Execute(context.Background(), watcher.cfg, discardLogger(), []string{"watch"}, strings.NewReader(""), &out)
	}()

	apitest.Eventually(t, 5*time.Second, func() bool { return srv.Connections(omarID) == 1 }, "watch never connected")
	apitest.Eventually(t, 5*time.Second, func() bool { return strings.Contains(out.String(), "Connected.") }, "no connected line")

	owner.mustRun("invite", "-team", "1", "-email", "omar@example.com", "-role", "admin")
	require.NoError(t, srv.Push(omarID, map[string]any{"event": "custom", "message": "Deploy finished."}))

	apitest.Eventually(t, 5*time.Second, func() bool {
		s := out.String()
		return strings.Contains(s, "Team Invitation: You have a new admin invitation for Ops.") &&
			strings.Contains(s, "Custom: Deploy finished.")
	}, "notifications not printed")

	s := out.String()
	assert.Less(t, strings.Index(s, "Team Invitation"), strings.Index(s, "Custom:"), "events print oldest first")

	srv.Disconnect(omarID)
	select {
	case err := <-done:
		assert.Equal(t, "Notification stream closed.", commandMessage(t, err))
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after the server closed the socket")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := apitest.New(t)
	uid := srv.AddUser("pia@example.com", "pia-password", true)
	c := newCLI(t, srv)
	c.mustRun("login", "-email", "pia@example.com", "-password", "pia-password")

	ctx, cancel := context.WithCancel(context.Background())
	var out syncBuffer
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, c.cfg, discardLogger(), []string{"watch", "-metrics-addr", "127.0.0.1:0"}, strings.NewReader(""), &out)
	}()

	apitest.Eventually(t, 5*time.Second, func() bool { return srv.Connections(uid) == 1 }, "watch never connected")
	apitest.Eventually(t, 5*time.Second, func() bool {
		return strings.Contains(out.String(), "Serving metrics on http://127.0.0.1:")
	}, "metrics server not announced")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
	apitest.Eventually(t, 5*time.Second, func() bool { return srv.Connections(uid) == 0 }, "socket left open")
}
