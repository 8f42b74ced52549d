package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) notificationRoutes(api *mux.Router) {
	n := api.PathPrefix("/notifications").Subrouter()
	n.HandleFunc("", s.authed(s.handleListNotifications)).Methods(http.MethodGet)
	n.HandleFunc("", s.authed(s.handleCreateNotification)).Methods(http.MethodPost)
	n.HandleFunc("/unread-count", s.authed(s.handleUnreadCount)).Methods(http.MethodGet)
	n.HandleFunc("/read-all", s.authed(s.handleMarkAllRead)).Methods(http.MethodPost)
	n.HandleFunc("/system", s.authed(s.handleSystemNotification)).Methods(http.MethodPost)
	n.HandleFunc("/cleanup", s.authed(s.handleCleanupNotifications)).Methods(http.MethodPost)
	n.HandleFunc("/{notificationId}/read", s.authed(s.handleMarkRead)).Methods(http.MethodPost)
	n.HandleFunc("/{notificationId}", s.authed(s.handleDeleteNotification)).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := s.service.ListNotifications(r.Context(), session, queryInt(r, "limit"), queryInt(r, "offset"), queryBool(r, "read"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       mapAll(page.Items, notificationView),
		"unreadCount": page.UnreadCount,
	})
}

func (s *HTTPServer) handleUnreadCount(w http.ResponseWriter, r *http.Request, session Session) {
	count, err := s.service.UnreadNotificationCount(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *HTTPServer) handleCreateNotification(w http.ResponseWriter, r *http.Request, session Session) {
	var body NotificationInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	n, deduplicated, err := s.service.CreateNotification(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	status := http.StatusCreated
	if deduplicated {
		status = http.StatusOK
	}
	response := notificationView(n)
	response["deduplicated"] = deduplicated
	writeJSON(w, status, response)
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.MarkNotificationRead(r.Context(), session, pathVar(r, "notificationId")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleMarkAllRead(w http.ResponseWriter, r *http.Request, session Session) {
	updated, err := s.service.MarkAllNotificationsRead(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *HTTPServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteNotification(r.Context(), session, pathVar(r, "notificationId")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSystemNotification(w http.ResponseWriter, r *http.Request, session Session) {
	var body SystemNotificationInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	sent, err := s.service.SendSystemNotification(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": sent})
}

func (s *HTTPServer) handleCleanupNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	deleted, err := s.service.CleanupExpiredNotifications(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
