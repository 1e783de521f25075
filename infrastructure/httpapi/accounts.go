package httpapi

import (
	"io"
	"net/http"
	"path"

	"chat-core/auth"
	"chat-core/domain"
	"chat-core/errors"

	"github.com/gorilla/mux"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type profileRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

type uploadResponse struct {
	FileRef string `json:"fileRef"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	token, err := s.accounts.Register(r.Context(), body)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token.String()})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	token, err := s.accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.String()})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, s.log, err)
		return
	}
	member := domain.ChatMember{
		UserID:      caller(r),
		Handle:      body.Handle,
		DisplayName: body.DisplayName,
		AvatarURL:   body.AvatarURL,
	}
	if err := s.chats.UpdateProfile(r.Context(), member); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// upload takes a multipart form with a single "file" part.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.log, errors.Invalid("missing file part: %v", err))
		return
	}
	defer func() { _ = file.Close() }()
	ref, err := s.chats.Upload(r.Context(), caller(r), header.Filename, file)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{FileRef: ref})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ref := path.Join(vars["owner"], vars["name"])
	file, err := s.files.Open(r.Context(), ref)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+vars["name"])
	http.ServeContent(w, r, vars["name"], info.ModTime(), io.ReadSeeker(file))
}
