package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GET /api/v1/status
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": swVersion,
	})
}

// GET /api/v1/users
func (a *App) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers()
	if err != nil {
		writeError(w, wrapInternal("list users", err))
		return
	}
	if users == nil {
		users = []UserRecord{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GET /api/v1/users/{userID}
func (a *App) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !reHexID.MatchString(userID) {
		writeError(w, errValidationf("bad user_id"))
		return
	}
	user, err := a.store.GetUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GET /api/v1/nodes
func (a *App) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.store.ListNodes()
	if err != nil {
		writeError(w, wrapInternal("list nodes", err))
		return
	}
	if nodes == nil {
		nodes = []NodeRecord{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GET /api/v1/nodes/{nodeID}
func (a *App) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	if !reHexID.MatchString(nodeID) {
		writeError(w, errValidationf("bad node_id"))
		return
	}
	node, err := a.store.GetNode(nodeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// GET /api/v1/events
func (a *App) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.ListEvents()
	if err != nil {
		writeError(w, wrapInternal("list events", err))
		return
	}
	if events == nil {
		events = []EventEntry{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GET /api/v1/event/{blockID}
func (a *App) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockID")
	if !reBlockID.MatchString(blockID) {
		writeError(w, errValidationf("bad block_id"))
		return
	}
	e, err := a.store.GetEvent(blockID)
	if err != nil {
		writeError(w, wrapInternal("read event", err))
		return
	}
	if e == nil {
		writeError(w, errNotFoundf("block %s not indexed", shortID(blockID)))
		return
	}
	writeJSON(w, http.StatusOK, e)
}
