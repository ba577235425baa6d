package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/openredstone/linkore/internal/linking"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth is a liveness check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LinkRequestBody is the plugin request for a new link code
type LinkRequestBody struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// LinkRequestResponse carries the code the player redeems on Discord
type LinkRequestResponse struct {
	Code string `json:"code"`
}

// handleLinkRequest issues a link code for an in-game player
func (r *Router) handleLinkRequest(w http.ResponseWriter, req *http.Request) {
	var body LinkRequestBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(body.UUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uuid")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	code, err := r.linking.RequestLink(req.Context(), id, body.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, LinkRequestResponse{Code: code})
	case errors.Is(err, linking.ErrAlreadyLinked):
		writeError(w, http.StatusConflict, "account is already linked")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// RenameBody is the plugin notification that a player's name changed
type RenameBody struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// handleRename records a changed in-game name and refreshes the nickname
func (r *Router) handleRename(w http.ResponseWriter, req *http.Request) {
	var body RenameBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(body.UUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uuid")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	err = r.linking.Rename(req.Context(), id, body.Name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, linking.ErrNotLinked):
		writeError(w, http.StatusNotFound, "account is not linked")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// UnlinkBody is the plugin request to unlink a player
type UnlinkBody struct {
	UUID string `json:"uuid"`
}

// handlePluginUnlink removes a link on behalf of the in-game player
func (r *Router) handlePluginUnlink(w http.ResponseWriter, req *http.Request) {
	var body UnlinkBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := uuid.Parse(body.UUID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uuid")
		return
	}

	user, err := r.linking.UnlinkByUUID(req.Context(), id, "player")
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, linking.ErrNotLinked):
		writeError(w, http.StatusNotFound, "account is not linked")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleListUsers returns all linked users
func (r *Router) handleListUsers(w http.ResponseWriter, req *http.Request) {
	users, err := r.store.ListUsers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleGetUser looks up a single link by UUID or Discord id
func (r *Router) handleGetUser(w http.ResponseWriter, req *http.Request) {
	user, err := r.lookupByKey(req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, linking.ErrNotLinked):
		writeError(w, http.StatusNotFound, "account is not linked")
	case errors.Is(err, errBadKey):
		writeError(w, http.StatusBadRequest, "key must be a uuid or a discord id")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// handleSyncUser reconciles a linked Discord account on demand
func (r *Router) handleSyncUser(w http.ResponseWriter, req *http.Request) {
	discordID, err := strconv.ParseInt(req.PathValue("discord_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discord id")
		return
	}

	user, err := r.linking.ForceSync(req.Context(), discordID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, linking.ErrNotLinked):
		writeError(w, http.StatusNotFound, "account is not linked")
	case errors.Is(err, linking.ErrMissingRoles):
		writeError(w, http.StatusConflict, "tracked groups have no matching guild roles")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleDeleteUser removes a link by UUID or Discord id
func (r *Router) handleDeleteUser(w http.ResponseWriter, req *http.Request) {
	by := "admin"
	if claims := r.getAuthClaims(req); claims != nil {
		by = claims.Username
	}

	var user interface{}
	var err error
	key := req.PathValue("key")
	if id, parseErr := uuid.Parse(key); parseErr == nil {
		user, err = r.linking.UnlinkByUUID(req.Context(), id, by)
	} else if discordID, parseErr := strconv.ParseInt(key, 10, 64); parseErr == nil {
		user, err = r.linking.Unlink(req.Context(), discordID, by)
	} else {
		writeError(w, http.StatusBadRequest, "key must be a uuid or a discord id")
		return
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, linking.ErrNotLinked):
		writeError(w, http.StatusNotFound, "account is not linked")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

var errBadKey = errors.New("bad key")

func (r *Router) lookupByKey(req *http.Request) (interface{}, error) {
	key := req.PathValue("key")
	if id, err := uuid.Parse(key); err == nil {
		return r.linking.LookupUUID(req.Context(), id)
	}
	if discordID, err := strconv.ParseInt(key, 10, 64); err == nil {
		return r.linking.LookupDiscord(req.Context(), discordID)
	}
	return nil, errBadKey
}
