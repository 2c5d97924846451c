// Package apitest runs an in-process fake of the team dashboard API for tests.
//
// It mirrors the observable behavior the client depends on: JWT access tokens
// that can be expired on demand, single-use rotating refresh tokens, FastAPI
// style {"detail": ...} errors, team management, and the per-user
// notifications WebSocket.
package apitest

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIPrefix is where the REST routes are mounted.
const APIPrefix = "/api/v1"

// User is the API's user representation.
type User struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	IsActive        bool      `json:"is_active"`
	IsAdmin         bool      `json:"is_admin"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	password string
}

// Member is a team membership.
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

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	Type    string `json:"type"`
}

type authResponse struct {
	User  User          `json:"user"`
	Token tokenResponse `json:"token"`
}

// Recorded is one request seen by the server.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

// Server is the fake API. Create it with New; it is closed via t.Cleanup.
type Server struct {
	*httptest.Server

	secret    []byte
	accessTTL time.Duration

	mu           sync.Mutex
	nextUserID   int64
	nextTeamID   int64
	users        map[int64]*User
	live         map[string]int64 // access token -> user id
	refresh      map[string]int64 // unused refresh token -> user id
	verifyTokens map[string]int64
	resetTokens  map[string]int64
	teams        []*Team
	conns        map[int64]map[*websocket.Conn]struct{}
	recorded     []Recorded
	refreshGate  chan struct{}
	failRefresh  bool

	refreshCalls atomic.Int64
	pings        atomic.Int64
	lastFrame    atomic.Value // string
}

// New starts a fake API server.
func New(tb testing.TB) *Server {
	tb.Helper()

	secret := make([]byte, 32)
	_, _ = rand.Read(secret)

	s := &Server{
		secret:       secret,
		accessTTL:    15 * time.Minute,
		users:        make(map[int64]*User),
		live:         make(map[string]int64),
		refresh:      make(map[string]int64),
		verifyTokens: make(map[string]int64),
		resetTokens:  make(map[string]int64),
		conns:        make(map[int64]map[*websocket.Conn]struct{}),
	}
	s.lastFrame.Store("")
	s.Server = httptest.NewServer(s.routes())
	tb.Cleanup(s.Close)
	return s
}

// Close drops every notification socket and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	var conns []*websocket.Conn
	for _, set := range s.conns {
		for c := range set {
			conns = append(conns, c)
		}
	}
	s.conns = make(map[int64]map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server closing")
	}
	s.Server.Close()
}

// BaseURL is the REST base URL (origin + APIPrefix).
func (s *Server) BaseURL() string { return s.URL + APIPrefix }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Get("/ws/notifications", s.handleWS)

	r.Route(APIPrefix, func(api chi.Router) {
		api.Post("/user/register", s.handleRegister)
		api.Post("/user/login", s.handleLogin)
		api.Post("/user/refresh", s.handleRefresh)
		api.Post("/user/verify-email", s.handleVerifyEmail)
		api.Post("/user/resend-verification", s.handleResendVerification)
		api.Post("/user/forgot-password", s.handleForgotPassword)
		api.Post("/user/reset-password", s.handleResetPassword)

		api.Group(func(protected chi.Router) {
			protected.Use(s.requireUser)
			protected.Get("/user/me", s.handleMe)
			protected.Patch("/user/me", s.handleUpdateMe)
			protected.Get("/teams", s.handleListTeams)
			protected.Post("/teams", s.handleCreateTeam)
			protected.Post("/teams/{teamID}/invite", s.handleInvite)
			protected.Patch("/teams/{teamID}/members/{memberID}", s.handleUpdateMember)
		})
	})
	return r
}

// ---- seeding and knobs ----

// AddUser creates a user directly and returns its id.
func (s *Server) AddUser(email, password string, verified bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(email, password, "Test", "", verified).ID
}

// Issue mints a fresh token pair for userID.
func (s *Server) Issue(userID int64) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issueLocked(userID)
	return t.Access, t.Refresh
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.live = make(map[string]int64)
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refresh = make(map[string]int64)
	s.mu.Unlock()
}

// FailRefresh makes /user/refresh answer 401 regardless of the token.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// HoldRefresh blocks /user/refresh handlers until release is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls counts requests that reached /user/refresh.
func (s *Server) RefreshCalls() int { return int(s.refreshCalls.Load()) }

// Pings counts keepalive frames received on notification sockets.
func (s *Server) Pings() int { return int(s.pings.Load()) }

// LastFrame is the last text frame received on any notification socket.
func (s *Server) LastFrame() string { return s.lastFrame.Load().(string) }

// VerificationToken returns the pending email verification token for email.
func (s *Server) VerificationToken(email string) string {
	return s.tokenFor(s.verifyTokens, email)
}

// ResetToken returns the pending password reset token for email.
func (s *Server) ResetToken(email string) string {
	return s.tokenFor(s.resetTokens, email)
}

func (s *Server) tokenFor(m map[string]int64, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByEmailLocked(email)
	if u == nil {
		return ""
	}
	for tok, id := range m {
		if id == u.ID {
			return tok
		}
	}
	return ""
}

// Requests returns a copy of the recorded requests.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.recorded...)
}

// RequestsTo returns recorded requests whose path equals path (relative to APIPrefix).
func (s *Server) RequestsTo(path string) []Recorded {
	var out []Recorded
	for _, r := range s.Requests() {
		if r.Path == APIPrefix+path {
			out = append(out, r)
		}
	}
	return out
}

// Connections returns the number of open notification sockets for userID.
func (s *Server) Connections(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns[userID])
}

// Push sends payload as one JSON text frame to every socket of userID.
func (s *Server) Push(userID int64, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.PushRaw(userID, string(b))
}

// PushRaw sends text verbatim to every socket of userID.
func (s *Server) PushRaw(userID int64, text string) error {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns[userID]))
	for c := range s.conns[userID] {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

// Disconnect closes every notification socket of userID from the server side.
func (s *Server) Disconnect(userID int64) {
	s.mu.Lock()
	conns := s.conns[userID]
	delete(s.conns, userID)
	s.mu.Unlock()

	for c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server closing")
	}
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool, msg string) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %s: %s", timeout, msg)
}

// ---- middleware ----

type ctxKey struct{}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			_ = r.Body.Close()
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		s.mu.Lock()
		s.recorded = append(s.recorded, Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		uid, ok := s.authenticate(tok)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

func (s *Server) authenticate(tok string) (int64, bool) {
	if tok == "" {
		return 0, false
	}
	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.live[tok]
	return uid, ok
}

func userID(r *http.Request) int64 {
	uid, _ := r.Context().Value(ctxKey{}).(int64)
	return uid
}

// ---- handlers: user ----

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if n := len([]rune(req.Password)); n < 8 || n > 128 {
		writeValidation(w, "password", "String should have at least 8 characters")
		return
	}

	s.mu.Lock()
	if s.userByEmailLocked(req.Email) != nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := s.addUserLocked(req.Email, req.Password, req.FirstName, req.LastName, false)
	s.verifyTokens[randomToken()] = u.ID
	tok := s.issueLocked(u.ID)
	resp := authResponse{User: *u, Token: tok}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	u := s.userByEmailLocked(req.Email)
	if u == nil || u.password != req.Password {
		s.mu.Unlock()
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if !u.IsEmailVerified {
		s.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "Email address is not verified.")
		return
	}
	tok := s.issueLocked(u.ID)
	resp := authResponse{User: *u, Token: tok}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.refresh[req.Refresh]
	if !ok || s.failRefresh {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	delete(s.refresh, req.Refresh)
	writeJSON(w, http.StatusOK, s.issueLocked(uid))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u := *s.users[userID(r)]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	u := s.users[userID(r)]
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	u.UpdatedAt = time.Now().UTC()
	out := *u
	s.mu.Unlock()

	_ = s.Push(out.ID, map[string]any{
		"event":      "profile_updated",
		"user_id":    out.ID,
		"first_name": out.FirstName,
		"last_name":  out.LastName,
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	uid, ok := s.verifyTokens[req.Token]
	if !ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Invalid or expired verification token.")
		return
	}
	delete(s.verifyTokens, req.Token)
	u := s.users[uid]
	if u.IsEmailVerified {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Email already verified."})
		return
	}
	u.IsEmailVerified = true
	s.mu.Unlock()

	_ = s.Push(uid, map[string]any{"event": "email_verified", "user_id": uid})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully."})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByEmailLocked(req.Email)
	switch {
	case u == nil:
		writeDetail(w, http.StatusNotFound, "User not found")
	case u.IsEmailVerified:
		writeDetail(w, http.StatusBadRequest, "Email already verified")
	default:
		s.verifyTokens[randomToken()] = u.ID
		writeJSON(w, http.StatusOK, map[string]string{"message": "Verification email sent."})
	}
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	if u := s.userByEmailLocked(req.Email); u != nil {
		s.resetTokens[randomToken()] = u.ID
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for that email, a reset link has been sent.",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.resetTokens[req.Token]
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid or expired reset token.")
		return
	}
	delete(s.resetTokens, req.Token)
	s.users[uid].password = req.Password
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

// ---- handlers: teams ----

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	s.mu.Lock()
	out := make([]Team, 0)
	for _, t := range s.teams {
		if memberIndex(t, uid) >= 0 {
			out = append(out, copyTeam(t))
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if n := len([]rune(req.Name)); n < 1 || n > 127 {
		writeValidation(w, "name", "String should have at least 1 character")
		return
	}

	uid := userID(r)
	now := time.Now().UTC()

	s.mu.Lock()
	for _, t := range s.teams {
		if t.Name == req.Name {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "A team with that name already exists.")
			return
		}
	}
	s.nextTeamID++
	inviter := uid
	t := &Team{
		ID:        s.nextTeamID,
		Name:      req.Name,
		OwnerID:   uid,
		CreatedAt: now,
		UpdatedAt: now,
		Members: []Member{{
			UserID:      uid,
			Email:       s.users[uid].Email,
			Role:        "owner",
			Status:      "active",
			InvitedByID: &inviter,
			JoinedAt:    now,
		}},
	}
	s.teams = append(s.teams, t)
	out := copyTeam(t)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = "member"
	}

	uid := userID(r)

	s.mu.Lock()
	t, status, detail := s.manageableTeamLocked(chi.URLParam(r, "teamID"), uid)
	if t == nil {
		s.mu.Unlock()
		writeDetail(w, status, detail)
		return
	}
	target := s.userByEmailLocked(req.Email)
	if target == nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Invited user not found.")
		return
	}
	if memberIndex(t, target.ID) >= 0 {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "User is already part of the team.")
		return
	}
	inviter := uid
	m := Member{
		UserID:      target.ID,
		Email:       target.Email,
		Role:        req.Role,
		Status:      "active",
		InvitedByID: &inviter,
		JoinedAt:    time.Now().UTC(),
	}
	t.Members = append(t.Members, m)
	teamID, teamName := t.ID, t.Name
	s.mu.Unlock()

	_ = s.Push(target.ID, map[string]any{
		"event":     "team_invitation",
		"team_id":   teamID,
		"team_name": teamName,
		"role":      m.Role,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role   *string `json:"role"`
		Status *string `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}

	memberID, err := strconv.ParseInt(chi.URLParam(r, "memberID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Member not found in this team.")
		return
	}

	s.mu.Lock()
	t, status, detail := s.manageableTeamLocked(chi.URLParam(r, "teamID"), userID(r))
	if t == nil {
		s.mu.Unlock()
		writeDetail(w, status, detail)
		return
	}
	i := memberIndex(t, memberID)
	if i < 0 {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Member not found in this team.")
		return
	}
	if req.Role != nil && *req.Role != "" {
		t.Members[i].Role = *req.Role
	}
	if req.Status != nil && *req.Status != "" {
		t.Members[i].Status = *req.Status
	}
	m := t.Members[i]
	teamID, teamName := t.ID, t.Name
	s.mu.Unlock()

	_ = s.Push(m.UserID, map[string]any{
		"event":     "team_membership_updated",
		"team_id":   teamID,
		"team_name": teamName,
		"role":      m.Role,
		"status":    m.Status,
	})
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) manageableTeamLocked(rawID string, uid int64) (*Team, int, string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, http.StatusNotFound, "Team not found."
	}
	for _, t := range s.teams {
		if t.ID != id {
			continue
		}
		i := memberIndex(t, uid)
		if i < 0 || (t.Members[i].Role != "owner" && t.Members[i].Role != "admin") {
			return nil, http.StatusForbidden, "You do not have permission to manage this team."
		}
		return t, 0, ""
	}
	return nil, http.StatusNotFound, "Team not found."
}

// ---- websocket ----

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authenticate(r.URL.Query().Get("token"))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	if !ok {
		_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	s.mu.Lock()
	if s.conns[uid] == nil {
		s.conns[uid] = make(map[*websocket.Conn]struct{})
	}
	s.conns[uid][conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns[uid], conn)
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		frame := string(data)
		s.lastFrame.Store(frame)
		if frame == "ping" || strings.Contains(frame, `"ping"`) {
			s.pings.Add(1)
		}
	}
}

// ---- helpers ----

func (s *Server) addUserLocked(email, password, first, last string, verified bool) *User {
	s.nextUserID++
	now := time.Now().UTC()
	u := &User{
		ID:              s.nextUserID,
		Email:           strings.ToLower(strings.TrimSpace(email)),
		FirstName:       first,
		LastName:        last,
		IsActive:        true,
		IsEmailVerified: verified,
		CreatedAt:       now,
		UpdatedAt:       now,
		password:        password,
	}
	s.users[u.ID] = u
	return u
}

func (s *Server) userByEmailLocked(email string) *User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *Server) issueLocked(uid int64) tokenResponse {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(uid, 10),
		"exp":  now.Add(s.accessTTL).Unix(),
		"iat":  now.Unix(),
		"jti":  uuid.NewString(),
		"type": "access",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign: %v", err))
	}
	refresh := randomToken()
	s.live[signed] = uid
	s.refresh[refresh] = uid
	return tokenResponse{Access: signed, Refresh: refresh, Type: "bearer"}
}

func memberIndex(t *Team, uid int64) int {
	for i, m := range t.Members {
		if m.UserID == uid {
			return i
		}
	}
	return -1
}

func copyTeam(t *Team) Team {
	out := *t
	out.Members = append([]Member(nil), t.Members...)
	return out
}

func randomToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeValidation(w, "body", "JSON decode error")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{
			"loc":  []string{"body", field},
			"msg":  msg,
			"type": "value_error",
		}},
	})
}
