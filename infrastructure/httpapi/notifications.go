package httpapi

import (
	"net/http"

	"chat-core/domain"

	"github.com/gorilla/mux"
)

type notifyRequest struct {
	SendTo    domain.UserID           `json:"sendTo"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	PostID    string                  `json:"postId"`
	CommentID string                  `json:"commentId"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type readAllResponse struct {
	Read int `json:"read"`
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := pageLimit(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	after := domain.NotificationID(r.URL.Query().Get("cursor"))
	notifications, err := s.counter.ListNotifications(r.Context(), caller(r), after, limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	page := notificationPage{Notifications: toNotificationViews(notifications)}
	if limit > 0 && len(notifications) == limit {
		page.NextCursor = &notifications[len(notifications)-1].ID
	}
	writeJSON(w, http.StatusOK, page)
}

// notify lets other services raise likes, follows and comments. The caller is the sender.
func (s *Server) notify(w http.ResponseWriter, r *http.Request) {
	var body notifyRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	notification, err := s.counter.Notify(r.Context(), domain.NotifyCommand{
		SendTo:    body.SendTo,
		Sender:    caller(r),
		Type:      body.Type,
		Title:     body.Title,
		Message:   body.Message,
		PostID:    body.PostID,
		CommentID: body.CommentID,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNotificationView(notification))
}

func (s *Server) unreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.counter.UnreadCount(r.Context(), caller(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := domain.NotificationID(mux.Vars(r)["notificationId"])
	if err := s.counter.MarkRead(r.Context(), caller(r), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readAll(w http.ResponseWriter, r *http.Request) {
	read, err := s.counter.ResetUnread(r.Context(), caller(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, readAllResponse{Read: read})
}
