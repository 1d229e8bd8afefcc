package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// RegisterRequest is the self-service registration body. user_id must be
// the SHA-256 of the decoded public key; the node acts as registrar and
// signs the resulting user_registered event.
type RegisterRequest struct {
	UserID    string `json:"user_id"`
	Alias     string `json:"alias"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	PublicKey string `json:"public_key"`
}

type ChallengeRequest struct {
	UserID string `json:"user_id"`
}

type VerifyRequest struct {
	UserID    string `json:"user_id"`
	Signature string `json:"signature"`
}

// POST /api/v1/auth/register
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payload := &UserRegisteredPayload{
		UserID:    req.UserID,
		Alias:     req.Alias,
		Name:      req.Name,
		Email:     req.Email,
		PublicKey: req.PublicKey,
		Version:   1,
	}
	if err := validateUserRegistered(payload); err != nil {
		writeError(w, err)
		return
	}
	pub, err := publicKeyFromB64(req.PublicKey)
	if err != nil {
		writeError(w, err)
		return
	}
	if sha256Hex(pub) != req.UserID {
		writeError(w, errValidationf("user_id does not match public key"))
		return
	}
	exists, err := a.store.UserExists(req.UserID)
	if err != nil {
		writeError(w, wrapInternal("look up user", err))
		return
	}
	if exists {
		writeError(w, errConflictf("user %s already registered", shortID(req.UserID)))
		return
	}
	if _, err := a.publishEvent(r.Context(), evUserRegistered, payload); err != nil {
		writeError(w, err)
		return
	}
	log.Infof("[auth] user %s (%s) registered", shortID(req.UserID), req.Alias)
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": req.UserID})
}

// POST /api/v1/auth/challenge
func (a *App) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !reHexID.MatchString(req.UserID) {
		writeError(w, errValidationf("bad user_id"))
		return
	}
	exists, err := a.store.UserExists(req.UserID)
	if err != nil {
		writeError(w, wrapInternal("look up user", err))
		return
	}
	if !exists {
		writeError(w, errNotFoundf("user %s not found", shortID(req.UserID)))
		return
	}
	challenge, err := a.auth.NewChallenge(req.UserID)
	if err != nil {
		writeError(w, wrapInternal("mint challenge", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// POST /api/v1/auth/verify
func (a *App) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !reHexID.MatchString(req.UserID) || !validBase64(req.Signature) {
		writeError(w, errValidationf("bad user_id or signature"))
		return
	}
	user, err := a.store.GetUser(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	challenge, ok := a.auth.Challenge(req.UserID)
	if !ok {
		writeError(w, errValidationf("no outstanding challenge for %s", shortID(req.UserID)))
		return
	}
	pub, err := publicKeyFromB64(user.PublicKey)
	if err != nil {
		writeError(w, wrapInternal("registry key", err))
		return
	}
	if err := verifySignedText(pub, challenge, req.Signature); err != nil {
		writeError(w, errAuthf("challenge signature invalid"))
		return
	}
	a.auth.DropChallenge(req.UserID)

	payload := &UserJoinedNodePayload{
		UserID:    req.UserID,
		Challenge: challenge,
		PublicKey: user.PublicKey,
		Signature: req.Signature,
	}
	if _, err := a.publishEvent(r.Context(), evUserJoinedNode, payload); err != nil {
		writeError(w, err)
		return
	}
	token, err := a.auth.NewSession(req.UserID)
	if err != nil {
		writeError(w, wrapInternal("mint session", err))
		return
	}
	log.Infof("[auth] user %s logged in", shortID(req.UserID))
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}
