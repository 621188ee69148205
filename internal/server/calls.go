package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voice-broker-go/internal/broker"
	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"
	"voice-broker-go/internal/telephony"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errDialerDisabled = faults.New(faults.Upstream, "telephony_disabled", "outbound calling is not configured")

// inboundHandler answers a call the client placed to the broker's number.
func (s *Server) inboundHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := r.FormValue("From")
	callSID := r.FormValue("CallSid")
	s.logger.Info("Inbound call received", zap.String("from", caller), zap.String("call_sid", callSID))

	phone := telephony.FormatE164(caller)
	if phone == "" {
		s.writeTwiML(w, s.Voice.Failure())
		return
	}

	user, created, err := s.Accounts.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		s.logger.Error("Failed to resolve caller", zap.String("phone", phone), zap.Error(err))
		s.writeTwiML(w, s.Voice.Failure())
		return
	}
	if created {
		s.logger.Info("Caller got a demo account", zap.String("user_id", user.ID))
	}

	if err := s.Calls.RecordCall(ctx, &models.Call{
		CallSID:     callSID,
		UserID:      user.ID,
		PhoneNumber: phone,
		Direction:   models.Inbound,
		Status:      "in-progress",
	}); err != nil {
		s.logger.Warn("Failed to record inbound call", zap.String("call_sid", callSID), zap.Error(err))
	}

	s.greet(w, r, callSID, user.ID)
}

// connectHandler runs when an outbound call is answered.
func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	s.greet(w, r, r.FormValue("CallSid"), mux.Vars(r)["user_id"])
}

func (s *Server) greet(w http.ResponseWriter, r *http.Request, callSID, userID string) {
	reply := s.Broker.Greet(r.Context(), callSID, userID)
	s.rememberPitch(callSID, reply.Recommendation)

	doc, err := s.Voice.Welcome(r.Context(), reply.Text)
	if err != nil {
		s.logger.Error("Failed to render welcome", zap.Error(err))
		doc = s.Voice.Failure()
	}
	s.writeTwiML(w, doc)
}

func (s *Server) processSpeechHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callSID := r.FormValue("CallSid")

	turn := broker.Turn{
		CallSID:        callSID,
		UserID:         s.callUser(ctx, callSID),
		Caller:         telephony.FormatE164(r.FormValue("From")),
		Utterance:      r.FormValue("SpeechResult"),
		Recommendation: s.pitch(callSID),
	}
	reply := s.Broker.HandleTurn(ctx, turn)
	// A pitch is only open for the turn right after it; agreeing, declining or moving
	// on all close it.
	s.forgetCall(callSID)
	if reply.Continue {
		s.rememberPitch(callSID, reply.Recommendation)
	}
	s.respond(w, r, reply)
}

func (s *Server) retryHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.FormValue("CallSid")
	reply := s.Broker.Retry(r.Context(), callSID, s.callUser(r.Context(), callSID))
	s.rememberPitch(callSID, reply.Recommendation)
	s.respond(w, r, reply)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, reply broker.Reply) {
	doc, err := s.Voice.Respond(r.Context(), reply.Text, reply.Continue)
	if err != nil {
		s.logger.Error("Failed to render reply", zap.Error(err))
		doc = s.Voice.Failure()
	}
	s.writeTwiML(w, doc)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	callSID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")

	if err := s.Calls.UpdateCallStatus(r.Context(), callSID, status); err != nil {
		s.logger.Error("Failed to update call status", zap.String("call_sid", callSID), zap.Error(err))
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "error", "message": "failed to update call status"})
		return
	}
	if status == "completed" || status == "failed" || status == "busy" || status == "no-answer" {
		s.forgetCall(callSID)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success", "call_status": status})
}

func (s *Server) initiateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := mux.Vars(r)["user_id"]
	if s.Dialer == nil {
		s.writeError(w, errDialerDisabled)
		return
	}

	user, err := s.Accounts.FindByID(ctx, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	callSID, err := s.Dialer.Call(user.PhoneNumber, user.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.Calls.RecordCall(ctx, &models.Call{
		CallSID:     callSID,
		UserID:      user.ID,
		PhoneNumber: telephony.FormatE164(user.PhoneNumber),
		Direction:   models.Outbound,
		Status:      "initiated",
	}); err != nil {
		s.logger.Warn("Failed to record outbound call", zap.String("call_sid", callSID), zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "initiated", "call_sid": callSID, "user_id": user.ID})
}

func (s *Server) audioHandler(w http.ResponseWriter, r *http.Request) {
	if s.Clips == nil {
		http.NotFound(w, r)
		return
	}
	clip, err := s.Clips.Clip(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", clip.ContentType)
	_, _ = w.Write(clip.Audio)
}

// callUser returns the user a call was recorded for, or "" to look up by phone.
func (s *Server) callUser(ctx context.Context, callSID string) string {
	if callSID == "" {
		return ""
	}
	call, err := s.Calls.FindCall(ctx, callSID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("Failed to load call", zap.String("call_sid", callSID), zap.Error(err))
		}
		return ""
	}
	return call.UserID
}

func (s *Server) rememberPitch(callSID string, rec *models.Recommendation) {
	if callSID == "" || rec == nil {
		return
	}
	s.pitchMu.Lock()
	s.pitches[callSID] = rec
	s.pitchMu.Unlock()
}

func (s *Server) pitch(callSID string) *models.Recommendation {
	s.pitchMu.Lock()
	defer s.pitchMu.Unlock()
	return s.pitches[callSID]
}

func (s *Server) forgetCall(callSID string) {
	s.pitchMu.Lock()
	delete(s.pitches, callSID)
	s.pitchMu.Unlock()
}

type scheduleRequest struct {
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	CallTime    string `json:"call_time"`
	CallType    string `json:"call_type"`
}

// scheduleHandler books an outbound call. The number defaults to the user's own.
func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	callTime, err := time.Parse(time.RFC3339, req.CallTime)
	if err != nil {
		s.writeError(w, faults.New(faults.Validation, "bad_request", "call_time must be an RFC 3339 timestamp"))
		return
	}
	callType, ok := models.ParseCallType(req.CallType)
	if !ok {
		s.writeError(w, faults.New(faults.Validation, "bad_request", "call_type must be market_open, mid_day or market_close"))
		return
	}

	user, err := s.Accounts.FindByID(ctx, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	phone := user.PhoneNumber
	if req.PhoneNumber != "" {
		if phone = telephony.FormatE164(req.PhoneNumber); phone == "" {
			s.writeError(w, telephony.ErrInvalidPhone)
			return
		}
	}

	sched, err := s.Schedules.Create(ctx, user.ID, phone, callTime, callType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.Dialer == nil {
		s.logger.Warn("Call scheduled while outbound calling is disabled", zap.Uint("schedule_id", sched.ID))
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"status":      models.ScheduleScheduled,
		"schedule_id": sched.ID,
		"message":     fmt.Sprintf("Call scheduled for %s", sched.CallTime.Format(time.RFC3339)),
	})
}
