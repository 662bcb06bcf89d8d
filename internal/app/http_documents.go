package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"opsdesk/api/internal/export"
	"opsdesk/api/internal/knowledge"
	"opsdesk/api/internal/markdown"
	"opsdesk/api/internal/rbac"
	"opsdesk/api/internal/store"
)

const (
	recentLimit  = 5
	historyLimit = 50
)

type updateDocumentInput struct {
	store.DocumentPatch
	ChangeSummary string `json:"changeSummary"`
}

type linkInput struct {
	LinkedType  store.LinkType `json:"linkedType"`
	LinkedID    string         `json:"linkedId"`
	LinkedTitle string         `json:"linkedTitle"`
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	wf := sessionFrom(r).Workflow
	documents := wf.LoadDocuments(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":  documents,
		"recent":     wf.Recent(recentLimit),
		"pinned":     wf.Pinned(),
		"categories": wf.Categories(),
		"mode":       wf.Mode(),
	})
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	var draft knowledge.Draft
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(draft.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
		return
	}
	if draft.Status != "" && !draft.Status.Valid() {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be draft, published or archived", nil)
		return
	}
	if draft.Status == store.StatusPublished && !session.Policy.HasPermission(rbac.ContentPublish) {
		s.forbid(w, r, []rbac.Permission{rbac.ContentPublish})
		return
	}

	doc := session.Workflow.CreateDocument(r.Context(), draft)
	if doc == nil {
		writeError(w, http.StatusInternalServerError, "CREATE_FAILED", "Failed to create document", nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc := sessionFrom(r).Workflow.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if doc == nil {
		writeMappedError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	documentID := chi.URLParam(r, "documentID")

	var body updateDocumentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	patch := body.DocumentPatch
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be blank", nil)
		return
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be draft, published or archived", nil)
			return
		}
		if *patch.Status == store.StatusPublished && !session.Policy.HasPermission(rbac.ContentPublish) {
			s.forbid(w, r, []rbac.Permission{rbac.ContentPublish})
			return
		}
	}

	if !session.Workflow.UpdateDocument(r.Context(), documentID, patch, body.ChangeSummary) {
		writeError(w, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to update document", nil)
		return
	}
	s.writeCurrentDocument(w, r, session, documentID)
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !sessionFrom(r).Workflow.DeleteDocument(r.Context(), chi.URLParam(r, "documentID")) {
		writeError(w, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete document", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions := sessionFrom(r).Workflow.GetVersions(r.Context(), chi.URLParam(r, "documentID"))
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *HTTPServer) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChangeSummary string `json:"changeSummary"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	version := sessionFrom(r).Workflow.CreateVersion(r.Context(), chi.URLParam(r, "documentID"), body.ChangeSummary)
	if version == nil {
		writeError(w, http.StatusInternalServerError, "VERSION_FAILED", "Failed to create version", nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"version": version})
}

func (s *HTTPServer) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	documentID := chi.URLParam(r, "documentID")
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_VERSION", "version number must be a positive integer", nil)
		return
	}

	var target *store.DocumentVersion
	for _, version := range session.Workflow.GetVersions(r.Context(), documentID) {
		if version.VersionNumber == number {
			v := version
			target = &v
			break
		}
	}
	if target == nil {
		writeMappedError(w, errNotFound)
		return
	}
	if !session.Workflow.RestoreVersion(r.Context(), documentID, *target) {
		writeError(w, http.StatusInternalServerError, "RESTORE_FAILED", "Failed to restore version", nil)
		return
	}
	s.writeCurrentDocument(w, r, session, documentID)
}

func (s *HTTPServer) handleLinkDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	var body linkInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if !body.LinkedType.Valid() || strings.TrimSpace(body.LinkedID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "linkedType must be task, project, objective or document and linkedId is required", nil)
		return
	}
	if session.Workflow.Mode() != store.ModeRemote {
		writeMappedError(w, store.ErrNotConfigured)
		return
	}
	link, ok := session.Workflow.LinkDocument(r.Context(), chi.URLParam(r, "documentID"), body.LinkedType, body.LinkedID, body.LinkedTitle)
	if !ok {
		writeError(w, http.StatusInternalServerError, "LINK_FAILED", "Failed to link document", nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"link": link})
}

func (s *HTTPServer) handleUnlinkDocument(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if session.Workflow.Mode() != store.ModeRemote {
		writeMappedError(w, store.ErrNotConfigured)
		return
	}
	if !session.Workflow.UnlinkDocument(r.Context(), chi.URLParam(r, "linkID")) {
		writeError(w, http.StatusInternalServerError, "UNLINK_FAILED", "Failed to remove link", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	commits, err := s.service.History(chi.URLParam(r, "documentID"), historyLimit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (s *HTTPServer) handleHistoryContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.service.HistoryContent(chi.URLParam(r, "documentID"), chi.URLParam(r, "hash"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": content, "html": markdown.ToHTML(content)})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	result, err := s.service.Export(r.Context(), chi.URLParam(r, "documentID"), format)
	if err != nil {
		s.log.Warn().Err(err).Str("format", string(format)).Msg("export document")
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	results := sessionFrom(r).Workflow.Search(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *HTTPServer) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": sessionFrom(r).Workflow.GetAISuggestions(body.Text)})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": sessionFrom(r).Workflow.GenerateSummary(r.Context(), body.Content)})
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"html": markdown.ToHTML(body.Content)})
}

// writeCurrentDocument answers a write with the session's copy of the
// document, reading the backend when the session does not hold it.
func (s *HTTPServer) writeCurrentDocument(w http.ResponseWriter, r *http.Request, session *Session, documentID string) {
	for _, doc := range session.Workflow.Documents() {
		if doc.ID == documentID {
			writeJSON(w, http.StatusOK, map[string]any{"document": doc})
			return
		}
	}
	doc, err := s.service.LookupDocument(r.Context(), documentID)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc})
}
