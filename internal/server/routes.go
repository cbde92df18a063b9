package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/kura/internal/engine"
	"github.com/lazypower/kura/internal/store"
)

type ownerKey struct{}

// withOwner parses {ownerID} once for every owner-scoped route.
func withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid owner id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, id)))
	})
}

func owner(r *http.Request) int64 {
	id, _ := r.Context().Value(ownerKey{}).(int64)
	return id
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// ownedRoom resolves {roomID} to a room of the request's owner, writing the
// error response itself when it cannot.
func (s *Server) ownedRoom(w http.ResponseWriter, r *http.Request) (*store.Room, bool) {
	id, err := pathID(r, "roomID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	room, err := s.db.GetRoom(r.Context(), owner(r), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return nil, false
	}
	return room, true
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string        `json:"text"`
		Files   []engine.File `json:"files"`
		History []string      `json:"history"`
		RoomID  int64         `json:"room_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	in := engine.Input{Text: req.Text, Files: req.Files, History: req.History, OwnerID: owner(r)}
	if req.RoomID != 0 {
		room, err := s.db.GetRoom(r.Context(), owner(r), req.RoomID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if room == nil {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		in.Room = room
	}

	c, err := s.engine.Classify(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleBatchReclassify(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.BatchReclassify(r.Context(), owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ConsolidateTemporaryProjects(r.Context(), owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type projectJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Temporary bool   `json:"temporary"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func toProjectJSON(p store.Project) projectJSON {
	return projectJSON{
		ID:        p.ID,
		Name:      p.Name,
		IsDefault: p.IsDefault,
		Temporary: p.Temporary,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	projects, err := s.db.ListProjects(r.Context(), owner(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]projectJSON, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Temporary bool   `json:"temporary"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p, err := s.db.CreateProject(r.Context(), owner(r), strings.TrimSpace(req.Name), req.Temporary)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectJSON(*p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deleted, err := s.db.DeleteProject(r.Context(), owner(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roomJSON struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	ProjectID        *int64   `json:"project_id"`
	LockMode         string   `json:"lock_mode"`
	Confidence       *float64 `json:"confidence"`
	LastClassifiedAt *int64   `json:"last_classified_at"`
}

func toRoomJSON(r *store.Room) roomJSON {
	return roomJSON{
		ID:               r.ID,
		Title:            r.Title,
		ProjectID:        r.ProjectID,
		LockMode:         string(r.LockMode),
		Confidence:       r.Confidence,
		LastClassifiedAt: r.LastClassifiedAt,
	}
}

// checkProject reports whether projectID, when set, belongs to the owner.
func (s *Server) checkProject(w http.ResponseWriter, r *http.Request, projectID *int64) bool {
	if projectID == nil {
		return true
	}
	p, err := s.db.GetProject(r.Context(), owner(r), *projectID)
	if err != nil {
		s.fail(w, r, err)
		return false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return false
	}
	return true
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		ProjectID *int64 `json:"project_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !s.checkProject(w, r, req.ProjectID) {
		return
	}

	room, err := s.db.CreateRoom(r.Context(), owner(r), req.Title, req.ProjectID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomJSON(room))
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	room, ok := s.ownedRoom(w, r)
	if !ok {
		return
	}

	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	switch req.Role {
	case "user", "assistant", "system":
	default:
		writeError(w, http.StatusBadRequest, "role must be user, assistant or system")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	msg, err := s.db.AddMessage(r.Context(), room.ID, req.Role, req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": msg.ID, "room_id": room.ID})
}

func (s *Server) handleReclassifyRoom(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roomID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.engine.ReclassifyRoom(r.Context(), id, owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reclassified":   c != nil,
		"classification": c,
	})
}

func (s *Server) handleLockRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.ownedRoom(w, r)
	if !ok {
		return
	}

	var req struct {
		ProjectID *int64 `json:"project_id"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if !s.checkProject(w, r, req.ProjectID) {
		return
	}

	if err := s.db.LockRoom(r.Context(), owner(r), room.ID, req.ProjectID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeRoom(w, r, room.ID)
}

func (s *Server) handleUnlockRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.ownedRoom(w, r)
	if !ok {
		return
	}
	if err := s.db.UnlockRoom(r.Context(), owner(r), room.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeRoom(w, r, room.ID)
}

func (s *Server) writeRoom(w http.ResponseWriter, r *http.Request, id int64) {
	room, err := s.db.GetRoom(r.Context(), owner(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomJSON(room))
}

func (s *Server) handleSaveMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier       string `json:"tier"`
		Content    string `json:"content"`
		Importance string `json:"importance"`
		Category   string `json:"category"`
	}
	if !decode(w, r, &req) {
		return
	}

	saved, err := s.memory.Save(r.Context(), owner(r), store.Tier(req.Tier), req.Content, req.Importance, req.Category)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

type memoryJSON struct {
	ID         int64  `json:"id"`
	Tier       string `json:"tier"`
	Content    string `json:"content"`
	Category   string `json:"category"`
	Importance string `json:"importance"`
	ExpiresAt  *int64 `json:"expires_at"`
	CreatedAt  int64  `json:"created_at"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	tiers := store.Tiers
	if t := r.URL.Query().Get("tier"); t != "" {
		tiers = []store.Tier{store.Tier(t)}
	}

	out := []memoryJSON{}
	for _, tier := range tiers {
		entries, err := s.memory.List(r.Context(), owner(r), tier)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		for _, e := range entries {
			out = append(out, memoryJSON{
				ID:         e.ID,
				Tier:       string(e.Tier),
				Content:    e.Content,
				Category:   e.Category,
				Importance: e.Importance,
				ExpiresAt:  e.ExpiresAt,
				CreatedAt:  e.CreatedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": out})
}

func (s *Server) handlePromoteMemory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memoryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.memory.Promote(r.Context(), owner(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (s *Server) handleCompressMemories(w http.ResponseWriter, r *http.Request) {
	n, err := s.memory.Compress(r.Context(), owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"compressed": n})
}

func (s *Server) handleMemoryContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		History []string `json:"history"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	mc, err := s.memory.LoadContext(r.Context(), owner(r), req.History)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memory.Stats(r.Context(), owner(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSetPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan string `json:"plan"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !s.quotas.Known(req.Plan) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown plan %q (known: %s)", req.Plan, strings.Join(s.quotas.Names(), ", ")))
		return
	}
	if err := s.quotas.SetPlan(r.Context(), owner(r), req.Plan); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"plan": req.Plan})
}
