package app

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"nel/api/internal/search"
)

func (s *HTTPServer) projectRoutes(api *mux.Router) {
	api.HandleFunc("/projects", s.authed(s.handleListProjects)).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.authed(s.handleCreateProject)).Methods(http.MethodPost)
	api.HandleFunc("/projects/mine", s.authed(s.handleUserProjects)).Methods(http.MethodGet)

	project := api.PathPrefix("/projects/{projectId}").Subrouter()
	project.HandleFunc("", s.authed(s.handleGetProject)).Methods(http.MethodGet)
	project.HandleFunc("", s.authed(s.handleUpdateProject)).Methods(http.MethodPatch)
	project.HandleFunc("", s.authed(s.handleDeleteProject)).Methods(http.MethodDelete)
	project.HandleFunc("/progress", s.authed(s.handleProjectProgress)).Methods(http.MethodGet)
	project.HandleFunc("/budget", s.authed(s.handleBudgetUtilization)).Methods(http.MethodGet)
	project.HandleFunc("/performance", s.authed(s.handlePerformance)).Methods(http.MethodGet)
	project.HandleFunc("/analytics/progress", s.authed(s.handleProgressHistory)).Methods(http.MethodGet)
	project.HandleFunc("/export", s.authed(s.handleExportReport)).Methods(http.MethodGet)
	project.HandleFunc("/tasks", s.authed(s.handleProjectTasks)).Methods(http.MethodGet)

	api.HandleFunc("/analytics/metrics", s.authed(s.handleRecordMetric)).Methods(http.MethodPost)
}

func (s *HTTPServer) taskRoutes(api *mux.Router) {
	api.HandleFunc("/tasks", s.authed(s.handleTasksByStatus)).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.authed(s.handleCreateTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/overdue", s.authed(s.handleOverdueTasks)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", s.authed(s.handleGetTask)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskId}", s.authed(s.handleUpdateTask)).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{taskId}", s.authed(s.handleDeleteTask)).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskId}/status", s.authed(s.handleUpdateTaskStatus)).Methods(http.MethodPut)
	api.HandleFunc("/search", s.authed(s.handleSearch)).Methods(http.MethodPost)
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request, session Session) {
	projects, err := s.service.ListProjects(r.Context(), session, r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(projects, projectView)})
}

func (s *HTTPServer) handleUserProjects(w http.ResponseWriter, r *http.Request, session Session) {
	projects, err := s.service.ListUserProjects(r.Context(), session, r.URL.Query().Get("managerId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(projects, projectView)})
}

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProjectInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	project, err := s.service.CreateProject(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectView(project))
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request, session Session) {
	project, err := s.service.GetProject(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(project))
}

func (s *HTTPServer) handleUpdateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body ProjectInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	project, err := s.service.UpdateProject(r.Context(), session, pathVar(r, "projectId"), body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectView(project))
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteProject(r.Context(), session, pathVar(r, "projectId")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleProjectProgress(w http.ResponseWriter, r *http.Request, session Session) {
	progress, err := s.service.GetProjectProgress(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
}

func (s *HTTPServer) handleBudgetUtilization(w http.ResponseWriter, r *http.Request, session Session) {
	utilization, err := s.service.GetBudgetUtilization(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"utilization": utilization})
}

func (s *HTTPServer) handlePerformance(w http.ResponseWriter, r *http.Request, session Session) {
	perf, err := s.service.GetPerformanceMetrics(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *HTTPServer) handleProgressHistory(w http.ResponseWriter, r *http.Request, session Session) {
	samples, err := s.service.GetProgressByProject(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(samples, metricView)})
}

func (s *HTTPServer) handleRecordMetric(w http.ResponseWriter, r *http.Request, session Session) {
	var body MetricInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	sample, err := s.service.RecordMetric(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, metricView(sample))
}

func (s *HTTPServer) handleExportReport(w http.ResponseWriter, r *http.Request, session Session) {
	includeDetails := true
	if v := queryBool(r, "details"); v != nil {
		includeDetails = *v
	}
	result, err := s.service.ExportProjectReport(r.Context(), session, pathVar(r, "projectId"), r.URL.Query().Get("format"), includeDetails)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleProjectTasks(w http.ResponseWriter, r *http.Request, session Session) {
	tasks, err := s.service.ListTasksByProject(r.Context(), session, pathVar(r, "projectId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(tasks, taskView)})
}

func (s *HTTPServer) handleTasksByStatus(w http.ResponseWriter, r *http.Request, session Session) {
	tasks, err := s.service.ListTasksByStatus(r.Context(), session, r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(tasks, taskView)})
}

func (s *HTTPServer) handleOverdueTasks(w http.ResponseWriter, r *http.Request, session Session) {
	tasks, err := s.service.ListOverdueTasks(r.Context(), session)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapAll(tasks, taskView)})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request, session Session) {
	var body TaskInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	task, err := s.service.CreateTask(r.Context(), session, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskView(task))
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request, session Session) {
	task, err := s.service.GetTask(r.Context(), session, pathVar(r, "taskId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(task))
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request, session Session) {
	var body TaskInput
	if !decodeOrFail(w, r, &body) {
		return
	}
	task, err := s.service.UpdateTask(r.Context(), session, pathVar(r, "taskId"), body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(task))
}

func (s *HTTPServer) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeOrFail(w, r, &body) {
		return
	}
	task, err := s.service.UpdateTaskStatus(r.Context(), session, pathVar(r, "taskId"), body.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskView(task))
}

func (s *HTTPServer) handleDeleteTask(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteTask(r.Context(), session, pathVar(r, "taskId")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type searchRequest struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	Limit     int    `json:"limit"`
	Filters   struct {
		Status     []string `json:"status"`
		Priority   []string `json:"priority"`
		AssigneeID []string `json:"assigneeId"`
		Tags       []string `json:"tags"`
		DateRange  *struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"dateRange"`
	} `json:"filters"`
}

func (req searchRequest) options() search.Options {
	opts := search.Options{
		Query:     req.Query,
		ProjectID: req.ProjectID,
		Limit:     req.Limit,
		Filters: search.Filters{
			Status:     req.Filters.Status,
			Priority:   req.Filters.Priority,
			AssigneeID: req.Filters.AssigneeID,
			Tags:       req.Filters.Tags,
		},
	}
	if dr := req.Filters.DateRange; dr != nil {
		opts.Filters.DateRange = &search.DateRange{Start: dr.Start, End: dr.End}
	}
	return opts
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	var body searchRequest
	if !decodeOrFail(w, r, &body) {
		return
	}
	result, err := s.service.Search(r.Context(), session, body.options())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResultView(result))
}
