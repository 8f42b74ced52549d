package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) authRoutes(api *mux.Router) {
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	auth.HandleFunc("/signin", s.handleSignIn).Methods(http.MethodPost)
	auth.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	auth.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password/request", s.handleRequestReset).Methods(http.MethodPost)
	auth.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/session/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)
}

func (s *HTTPServer) userRoutes(api *mux.Router) {
	api.HandleFunc("/me", s.authed(s.handleGetMe)).Methods(http.MethodGet)
	api.HandleFunc("/me", s.authed(s.handleUpdateMe)).Methods(http.MethodPatch)
	api.HandleFunc("/me/preferences", s.authed(s.handleUpdatePreferences)).Methods(http.MethodPatch)

	api.HandleFunc("/users", s.authed(s.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users", s.authed(s.handleCreateUser)).Methods(http.MethodPost)
	api.HandleFunc("/users/by-email", s.authed(s.handleUserByEmail)).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/role", s.authed(s.handleSetUserRole)).Methods(http.MethodPut)
	api.HandleFunc("/users/{userId}/ban", s.authed(s.handleToggleBan)).Methods(http.MethodPost)
	api.HandleFunc("/dev/admin", s.handleCreateDevAdmin).Methods(http.MethodPost)

	api.HandleFunc("/orgs", s.authed(s.handleListOrgs)).Methods(http.MethodGet)
	api.HandleFunc("/orgs", s.authed(s.handleCreateOrg)).Methods(http.MethodPost)
	api.HandleFunc("/orgs/members", s.authed(s.handleListMembers)).Methods(http.MethodGet)
	api.HandleFunc("/orgs/invitations", s.authed(s.handleInvite)).Methods(http.MethodPost)
	api.HandleFunc("/invitations/accept", s.authed(s.handleAcceptInvitation)).Methods(http.MethodPost)
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	result, err := s.service.SignUp(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	response := map[string]any{
		"userId":  result.User.ID,
		"message": "Please check your email to verify your account",
	}
	// Dev bypass: without email delivery the token is the only way to verify.
	if !s.service.EmailConfigured() {
		response["devVerificationToken"] = result.VerificationToken
		response["message"] = "Account created. Verify your email to continue."
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Email verified successfully"})
}

func (s *HTTPServer) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	token, err := s.service.ResendVerification(r.Context(), body.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	response := map[string]any{"message": "If the account needs verification, an email has been sent"}
	if !s.service.EmailConfigured() && token != "" {
		response["devVerificationToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	response := map[string]any{"message": "If an account exists, a reset email has been sent"}
	if !s.service.EmailConfigured() && token != "" {
		response["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token, r.Header.Get(orgIDHeader))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userId":        session.UserID,
		"userName":      session.UserName,
		"role":          session.Role,
		"orgId":         session.OrgID,
		"orgRole":       session.OrgRole,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleGetMe(w http.ResponseWriter, r *http.Request, session Session) {
	user, err := s.service.GetCurrentUser(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProfileInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (s *HTTPServer) handleUpdatePreferences(w http.ResponseWriter, r *http.Request, session Session) {
	var body PreferencesInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	prefs, err := s.service.UpdateUserPreferences(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, session Session) {
	users, err := s.service.ListUsers(r.Context(), session, UserQuery{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
		Role:   r.URL.Query().Get("role"),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(users, userView)})
}

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateUserInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	user, err := s.service.CreateUser(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userView(user))
}

func (s *HTTPServer) handleUserByEmail(w http.ResponseWriter, r *http.Request, session Session) {
	user, err := s.service.GetUserByEmail(r.Context(), session, r.URL.Query().Get("email"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userView(user))
}

func (s *HTTPServer) handleSetUserRole(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Role string `json:"role"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.SetUserRole(r.Context(), session, pathVar(r, "userId"), body.Role); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleToggleBan(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	banned, err := s.service.ToggleUserBan(r.Context(), session, pathVar(r, "userId"), body.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"banned": banned})
}

func (s *HTTPServer) handleCreateDevAdmin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	user, created, err := s.service.CreateDevAdmin(r.Context(), body.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"user": userView(user), "created": created})
}

func (s *HTTPServer) handleListOrgs(w http.ResponseWriter, r *http.Request, session Session) {
	memberships, err := s.service.ListMyOrganizations(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(memberships, membershipView)})
}

func (s *HTTPServer) handleCreateOrg(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	org, err := s.service.CreateOrganization(r.Context(), session, body.Name, body.Slug)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, organizationView(org))
}

func (s *HTTPServer) handleListMembers(w http.ResponseWriter, r *http.Request, session Session) {
	members, err := s.service.ListMembers(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(members, membershipView)})
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	inv, err := s.service.InviteMember(r.Context(), session, body.Email, body.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	response := invitationView(inv)
	if !s.service.EmailConfigured() {
		response["devInvitationToken"] = inv.Token
	}
	writeJSON(w, http.StatusCreated, response)
}

func (s *HTTPServer) handleAcceptInvitation(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Token string `json:"token"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	membership, err := s.service.AcceptInvitation(r.Context(), session, body.Token)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipView(membership))
}
