package app

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const maxWebhookBytes = 1 << 20

func (s *HTTPServer) billingRoutes(api *mux.Router) {
	api.HandleFunc("/plans", s.handleListPlans).Methods(http.MethodGet)

	subs := api.PathPrefix("/subscriptions").Subrouter()
	subs.HandleFunc("/me", s.authed(s.handleMySubscription)).Methods(http.MethodGet)
	subs.HandleFunc("/checkout", s.authed(s.handleCheckout)).Methods(http.MethodPost)
	subs.HandleFunc("/analytics", s.authed(s.handleSubscriptionAnalytics)).Methods(http.MethodGet)
	subs.HandleFunc("/users/{userId}", s.authed(s.handleUserSubscription)).Methods(http.MethodGet)
	subs.HandleFunc("/{subscriptionId}", s.authed(s.handleUpdateSubscription)).Methods(http.MethodPatch)
	subs.HandleFunc("/{subscriptionId}/cancel", s.authed(s.handleCancelSubscription)).Methods(http.MethodPost)

	api.HandleFunc("/emails/{emailId}", s.authed(s.handleEmailStatus)).Methods(http.MethodGet)
	api.HandleFunc("/emails/{emailId}/cancel", s.authed(s.handleCancelEmail)).Methods(http.MethodPost)

	api.HandleFunc("/webhooks/resend", s.handleResendWebhook).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/billing", s.handleBillingWebhook).Methods(http.MethodPost)
}

func (s *HTTPServer) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.service.ListPlans(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(plans, planView)})
}

func (s *HTTPServer) writeSubscription(w http.ResponseWriter, r *http.Request, session Session, userID string) {
	view, err := s.service.GetUserSubscription(r.Context(), session, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusOK, map[string]any{"subscription": nil})
		return
	}
	response := map[string]any{"subscription": subscriptionView(view.Subscription), "plan": nil}
	if view.Plan != nil {
		response["plan"] = planView(*view.Plan)
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleMySubscription(w http.ResponseWriter, r *http.Request, session Session) {
	s.writeSubscription(w, r, session, session.UserID)
}

func (s *HTTPServer) handleUserSubscription(w http.ResponseWriter, r *http.Request, session Session) {
	s.writeSubscription(w, r, session, pathVar(r, "userId"))
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		PlanID     string `json:"planId"`
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	checkout, err := s.service.CreateCheckoutSession(r.Context(), session, body.PlanID, body.SuccessURL, body.CancelURL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

func (s *HTTPServer) handleUpdateSubscription(w http.ResponseWriter, r *http.Request, session Session) {
	var body SubscriptionPatch
	if !decodeOrFail(w, r, &body) {
		return
	}
	sub, err := s.service.UpdateSubscription(r.Context(), session, pathVar(r, "subscriptionId"), body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(sub))
}

func (s *HTTPServer) handleCancelSubscription(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Immediately bool `json:"immediately"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	sub, err := s.service.CancelSubscription(r.Context(), session, pathVar(r, "subscriptionId"), body.Immediately)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(sub))
}

func (s *HTTPServer) handleSubscriptionAnalytics(w http.ResponseWriter, r *http.Request, session Session) {
	analytics, err := s.service.GetSubscriptionAnalytics(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *HTTPServer) handleEmailStatus(w http.ResponseWriter, r *http.Request, session Session) {
	rec, err := s.service.GetEmailStatus(r.Context(), session, pathVar(r, "emailId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emailView(rec))
}

func (s *HTTPServer) handleCancelEmail(w http.ResponseWriter, r *http.Request, session Session) {
	rec, err := s.service.CancelEmail(r.Context(), session, pathVar(r, "emailId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emailView(rec))
}

// handleResendWebhook needs the raw body for signature verification.
func (s *HTTPServer) handleResendWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read body", nil)
		return
	}
	event, err := s.service.HandleEmailWebhook(r.Context(), r.Header, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "type": event.Type})
}

// billingAuthorized accepts every call when no token is configured.
func (s *HTTPServer) billingAuthorized(r *http.Request) bool {
	if s.billingToken == "" {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(billingHeader))
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.billingToken)) == 1
}

func (s *HTTPServer) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if !s.billingAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid billing token", nil)
		return
	}
	var event BillingEvent
	if !decodeOrFail(w, r, &event) {
		return
	}
	recognized, err := s.service.HandleBillingWebhook(r.Context(), event)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true, "handled": recognized})
}
