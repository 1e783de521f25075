package httpapi

import (
	"net/http"
	"strconv"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"

	"github.com/gorilla/mux"
)

type createDirectRequest struct {
	UserID domain.UserID `json:"userId"`
}

type createGroupRequest struct {
	Name     string          `json:"name"`
	Members  []domain.UserID `json:"members"`
	ImageURL string          `json:"imageUrl"`
}

type addMemberRequest struct {
	UserID domain.UserID `json:"userId"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	FileRef string `json:"fileRef"`
}

type openChatRequest struct {
	UpToSequence uint64 `json:"upToSequence"`
}

type openChatResponse struct {
	Seen int `json:"seen"`
	Read int `json:"read"`
}

// caller is set by auth.Middleware on every secured route.
func caller(r *http.Request) domain.UserID {
	userID, _ := auth.UserIDFrom(r.Context())
	return userID
}

func chatID(r *http.Request) domain.ChatID {
	return domain.ChatID(mux.Vars(r)["chatId"])
}

func messageID(r *http.Request) domain.MessageID {
	return domain.MessageID(mux.Vars(r)["messageId"])
}

// pageLimit reads ?limit=, zero meaning the service default.
func pageLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.Invalid("limit must be a positive integer")
	}
	return min(limit, maxPageSize), nil
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.ListChats(r.Context(), caller(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatViews(chats))
}

func (s *Server) createDirectChat(w http.ResponseWriter, r *http.Request) {
	var body createDirectRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	chat, err := s.chats.CreateDirectChat(r.Context(), caller(r), body.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatView(chat))
}

func (s *Server) createGroupChat(w http.ResponseWriter, r *http.Request) {
	var body createGroupRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	creator := caller(r)
	chat, err := s.chats.CreateGroupChat(r.Context(), domain.CreateGroupChatCommand{
		Creator:  creator,
		Members:  append([]domain.UserID{creator}, body.Members...),
		Name:     body.Name,
		ImageURL: body.ImageURL,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChatView(chat))
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.GetChat(r.Context(), caller(r), chatID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatView(chat))
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.chats.ListMembers(r.Context(), caller(r), chatID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var body addMemberRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.chats.AddMember(r.Context(), chatID(r), caller(r), body.UserID); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	target := domain.UserID(mux.Vars(r)["userId"])
	if err := s.chats.RemoveMember(r.Context(), chatID(r), caller(r), target); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var body sendMessageRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	msg, err := s.chats.SendMessage(r.Context(), domain.SendMessageCommand{
		ChatID:   chatID(r),
		SenderID: caller(r),
		Content:  body.Content,
		FileID:   body.FileRef,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageView(msg))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := pageLimit(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	messages, next, err := s.chats.ListMessages(r.Context(), caller(r), domain.ListMessagesCommand{
		ChatID: chatID(r),
		Cursor: domain.Cursor(r.URL.Query().Get("cursor")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messagePage{Messages: toMessageViews(messages), NextCursor: next})
}

func (s *Server) markSeen(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.MarkSeen(r.Context(), chatID(r), messageID(r), caller(r)); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSeenBy(w http.ResponseWriter, r *http.Request) {
	seenBy, err := s.chats.GetSeenBy(r.Context(), caller(r), chatID(r), messageID(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, seenBy)
}

func (s *Server) openChat(w http.ResponseWriter, r *http.Request) {
	var body openChatRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			writeError(w, s.log, err)
			return
		}
	}
	seen, read, err := s.chats.OpenChat(r.Context(), chatID(r), caller(r), body.UpToSequence)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, openChatResponse{Seen: seen, Read: read})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	messages, err := s.chats.Search(r.Context(), caller(r), chatID(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(messages))
}
