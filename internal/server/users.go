package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"voice-broker-go/internal/accounts"
	"voice-broker-go/internal/models"
	"voice-broker-go/internal/telephony"

	"github.com/gorilla/mux"
)

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	phone := telephony.FormatE164(req.PhoneNumber)
	if phone == "" {
		s.writeError(w, telephony.ErrInvalidPhone)
		return
	}

	user, err := s.Accounts.Register(r.Context(), req.Name, req.Email, phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) userHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.Accounts.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}


func (s *Server) updateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req accounts.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}
	if req.PhoneNumber != nil {
		phone := telephony.FormatE164(*req.PhoneNumber)
		if phone == "" {
			s.writeError(w, telephony.ErrInvalidPhone)
			return
		}
		req.PhoneNumber = &phone
	}

	user, fields, err := s.Accounts.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	message := "User updated successfully"
	if len(fields) == 0 {
		message = "No updates provided"
		fields = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        message,
		"updated_fields": fields,
		"user":           user,
	})
}

func (s *Server) watchlistHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.Accounts.Watchlist(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"watchlist": items})
}

type watchRequest struct {
	Ticker string `json:"ticker"`
}

func (s *Server) watchHandler(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	added, err := s.Accounts.Watch(r.Context(), mux.Vars(r)["id"], req.Ticker)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ticker := models.NormalizeTicker(req.Ticker)
	if !added {
		s.writeJSON(w, http.StatusOK, statusMessage(fmt.Sprintf("%s is already in your watchlist", ticker)))
		return
	}
	s.writeJSON(w, http.StatusCreated, statusMessage(fmt.Sprintf("%s added to your watchlist", ticker)))
}

func (s *Server) unwatchHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	removed, err := s.Accounts.Unwatch(r.Context(), vars["id"], vars["ticker"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	ticker := models.NormalizeTicker(vars["ticker"])
	if !removed {
		s.writeJSON(w, http.StatusOK, statusMessage(fmt.Sprintf("%s was not in your watchlist", ticker)))
		return
	}
	s.writeJSON(w, http.StatusOK, statusMessage(fmt.Sprintf("%s removed from your watchlist", ticker)))
}

func statusMessage(message string) map[string]string {
	return map[string]string{"status": "success", "message": message}
}
