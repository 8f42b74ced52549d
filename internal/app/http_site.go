package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

func (s *HTTPServer) siteRoutes(api *mux.Router) {
	api.HandleFunc("/projects/{projectId}/resources", s.authed(s.handleListResources)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/resources/utilization", s.authed(s.handleResourceUtilization)).Methods(http.MethodGet)
	api.HandleFunc("/resources", s.authed(s.handleCreateResource)).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/status", s.authed(s.handleResourceStatus)).Methods(http.MethodPut)

	api.HandleFunc("/projects/{projectId}/equipment", s.authed(s.handleListEquipment)).Methods(http.MethodGet)
	api.HandleFunc("/equipment", s.authed(s.handleCreateEquipment)).Methods(http.MethodPost)
	api.HandleFunc("/equipment/maintenance-due", s.authed(s.handleMaintenanceDue)).Methods(http.MethodGet)
	api.HandleFunc("/equipment/{equipmentId}/status", s.authed(s.handleEquipmentStatus)).Methods(http.MethodPut)

	api.HandleFunc("/projects/{projectId}/activities", s.authed(s.handleListActivities)).Methods(http.MethodGet)
	api.HandleFunc("/activities", s.authed(s.handleRecordActivity)).Methods(http.MethodPost)

	api.HandleFunc("/projects/{projectId}/incidents", s.authed(s.handleListIncidents)).Methods(http.MethodGet)
	api.HandleFunc("/incidents", s.authed(s.handleReportIncident)).Methods(http.MethodPost)
	api.HandleFunc("/incidents/stats", s.authed(s.handleIncidentStats)).Methods(http.MethodGet)
	api.HandleFunc("/incidents/{incidentId}/resolve", s.authed(s.handleResolveIncident)).Methods(http.MethodPost)

	api.HandleFunc("/projects/{projectId}/documents", s.authed(s.handleListDocuments)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{projectId}/documents", s.authed(s.handleUploadDocument)).Methods(http.MethodPost)
	api.HandleFunc("/documents/{documentId}/url", s.authed(s.handleDocumentURL)).Methods(http.MethodGet)
	api.HandleFunc("/documents/{documentId}", s.authed(s.handleDeleteDocument)).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request, session Session) {
	resources, err := s.service.ListResources(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(resources, resourceView)})
}

func (s *HTTPServer) handleResourceUtilization(w http.ResponseWriter, r *http.Request, session Session) {
	utilization, err := s.service.GetResourceUtilization(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utilization": utilization})
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request, session Session) {
	var body ResourceInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	resource, err := s.service.CreateResource(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resourceView(resource))
}

func (s *HTTPServer) handleResourceStatus(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.UpdateResourceStatus(r.Context(), session, pathVar(r, "resourceId"), body.Status); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListEquipment(w http.ResponseWriter, r *http.Request, session Session) {
	equipment, err := s.service.ListEquipment(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(equipment, equipmentView)})
}

func (s *HTTPServer) handleMaintenanceDue(w http.ResponseWriter, r *http.Request, session Session) {
	equipment, err := s.service.ListEquipmentDueForMaintenance(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(equipment, equipmentView)})
}

func (s *HTTPServer) handleCreateEquipment(w http.ResponseWriter, r *http.Request, session Session) {
	var body EquipmentInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	equipment, err := s.service.CreateEquipment(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, equipmentView(equipment))
}

func (s *HTTPServer) handleEquipmentStatus(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	if err := s.service.UpdateEquipmentStatus(r.Context(), session, pathVar(r, "equipmentId"), body.Status); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListActivities(w http.ResponseWriter, r *http.Request, session Session) {
	activities, err := s.service.ListSiteActivities(r.Context(), session, pathVar(r, "projectId"), queryInt(r, "limit"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(activities, activityView)})
}

func (s *HTTPServer) handleRecordActivity(w http.ResponseWriter, r *http.Request, session Session) {
	var body SiteActivityInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	activity, err := s.service.RecordSiteActivity(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activityView(activity))
}

func (s *HTTPServer) handleListIncidents(w http.ResponseWriter, r *http.Request, session Session) {
	incidents, err := s.service.ListIncidents(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(incidents, incidentView)})
}

func (s *HTTPServer) handleReportIncident(w http.ResponseWriter, r *http.Request, session Session) {
	var body IncidentInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	incident, err := s.service.ReportIncident(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, incidentView(incident))
}

func (s *HTTPServer) handleIncidentStats(w http.ResponseWriter, r *http.Request, session Session) {
	stats, err := s.service.GetIncidentStats(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleResolveIncident(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		ResolutionNotes string `json:"resolutionNotes"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	incident, err := s.service.ResolveIncident(r.Context(), session, pathVar(r, "incidentId"), body.ResolutionNotes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incidentView(incident))
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request, session Session) {
	docs, err := s.service.ListDocuments(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(docs, documentView)})
}

// handleUploadDocument accepts multipart/form-data with a "file" part and
// optional "name", "type" and comma separated "tags" fields.
func (s *HTTPServer) handleUploadDocument(w http.ResponseWriter, r *http.Request, session Session) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file is required", nil)
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}
	tags := lo.Compact(lo.Map(strings.Split(r.FormValue("tags"), ","), func(tag string, _ int) string {
		return strings.TrimSpace(tag)
	}))
	doc, err := s.service.UploadDocument(r.Context(), session, DocumentUpload{
		ProjectID: pathVar(r, "projectId"),
		Name:      name,
		Type:      r.FormValue("type"),
		MimeType:  header.Header.Get("Content-Type"),
		Size:      header.Size,
		Tags:      tags,
		Body:      file,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentView(doc))
}

func (s *HTTPServer) handleDocumentURL(w http.ResponseWriter, r *http.Request, session Session) {
	url, err := s.service.GetDocumentURL(r.Context(), session, pathVar(r, "documentId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteDocument(r.Context(), session, pathVar(r, "documentId")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
