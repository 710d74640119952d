package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/klog/v2"

	"go.miloapis.com/auditdashboard/internal/apierrors"
	"go.miloapis.com/auditdashboard/internal/dashboard"
	"go.miloapis.com/auditdashboard/internal/lifecycle"
	"go.miloapis.com/auditdashboard/internal/preferences"
	"go.miloapis.com/auditdashboard/internal/server/filters"
	"go.miloapis.com/auditdashboard/internal/storage"
	"go.miloapis.com/auditdashboard/internal/timeutil"
	"go.miloapis.com/auditdashboard/pkg/apis/dashboard/v1alpha1"
)

const (
	preferenceHideReadOnly = preferences.HideReadOnlyKey

	// maxPreferenceBodyBytes bounds PUT bodies, which only ever hold one boolean.
	maxPreferenceBodyBytes = 4 << 10

	readinessTimeout = 2 * time.Second
)

var (
	recentChangesGK = schema.GroupKind{Group: v1alpha1.GroupName, Kind: v1alpha1.KindRecentChangeList}
	timelineGK      = schema.GroupKind{Group: v1alpha1.GroupName, Kind: v1alpha1.KindResourceTimeline}
	preferenceGK    = schema.GroupKind{Group: v1alpha1.GroupName, Kind: v1alpha1.KindPreference}
	summaryGK       = schema.GroupKind{Group: v1alpha1.GroupName, Kind: v1alpha1.KindEventSummary}
)

// listRecentChanges serves GET /api/v1alpha1/events.
func (s *Server) listRecentChanges(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	now := s.now()

	var errs field.ErrorList
	query := storage.RecentChangesQuery{Filter: params.Get("filter")}
	query.Page, errs = intParam(params, "page", errs)
	query.PageSize, errs = intParam(params, "pageSize", errs)
	query.Since, errs = timeParam(params, "since", now, errs)
	query.Until, errs = timeParam(params, "until", now, errs)
	if err := lifecycle.NewValidationError(errs); err != nil {
		s.writeError(w, r, err, recentChangesGK, "")
		return
	}

	result, err := s.dashboard.RecentChanges(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err, recentChangesGK, "")
		return
	}
	writeJSON(w, http.StatusOK, toRecentChangeList(result))
}

// getResourceLifecycle serves GET /api/v1alpha1/lifecycle/{gvk}/{namespace}/{name}.
func (s *Server) getResourceLifecycle(w http.ResponseWriter, r *http.Request) {
	id, err := lifecycle.ParseFromURL(r.PathValue("gvk"), r.PathValue("namespace"), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err, timelineGK, r.PathValue("name"))
		return
	}

	opts := dashboard.LifecycleOptions{Scope: filters.ScopeFromContext(r.Context())}
	if raw := r.URL.Query().Get("hideReadOnly"); raw != "" {
		hide, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, lifecycle.NewValidationError(field.ErrorList{
				field.Invalid(field.NewPath("hideReadOnly"), raw, "hideReadOnly must be true or false"),
			}), timelineGK, id.Name)
			return
		}
		opts.HideReadOnly = &hide
	}

	timeline, err := s.dashboard.ResourceLifecycle(r.Context(), *id, opts)
	if err != nil {
		s.writeError(w, r, err, schema.GroupKind{Group: id.APIGroup, Kind: id.Kind}, id.Name)
		return
	}
	writeJSON(w, http.StatusOK, toResourceTimeline(timeline))
}

// getSummary serves GET /api/v1alpha1/summary.
func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	now := s.now()

	var errs field.ErrorList
	var query storage.CountQuery
	query.Since, errs = timeParam(params, "since", now, errs)
	query.Until, errs = timeParam(params, "until", now, errs)
	if err := lifecycle.NewValidationError(errs); err != nil {
		s.writeError(w, r, err, summaryGK, "")
		return
	}

	counts, err := s.dashboard.Summary(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err, summaryGK, "")
		return
	}
	writeJSON(w, http.StatusOK, toEventSummary(query, counts))
}

// getPreference serves GET /api/v1alpha1/preferences/hide-read-only.
func (s *Server) getPreference(w http.ResponseWriter, r *http.Request) {
	scope := filters.ScopeFromContext(r.Context())
	writeJSON(w, http.StatusOK, toPreference(scope, s.dashboard.HideReadOnly(r.Context(), scope)))
}

// putPreference serves PUT /api/v1alpha1/preferences/hide-read-only.
func (s *Server) putPreference(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *bool `json:"value"`
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxPreferenceBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		writeStatus(w, apierrors.NewBadRequest(`The request body must be a JSON object such as {"value": true}.`))
		return
	}
	if body.Value == nil {
		s.writeError(w, r, lifecycle.NewValidationError(field.ErrorList{
			field.Required(field.NewPath("value"), "value is required"),
		}), preferenceGK, preferenceHideReadOnly)
		return
	}

	scope := filters.ScopeFromContext(r.Context())
	if err := s.dashboard.SetHideReadOnly(r.Context(), scope, *body.Value); err != nil {
		klog.ErrorS(err, "Failed to store preference",
			"preference", preferenceHideReadOnly,
			"scope", scope,
			"requestID", RequestIDFrom(r.Context()),
		)
		writeStatus(w, apierrors.NewServiceUnavailable("The preference could not be saved. Try again shortly."))
		return
	}
	writeJSON(w, http.StatusOK, toPreference(scope, *body.Value))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.dashboard.Ready(ctx); err != nil {
		klog.V(2).InfoS("Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("event store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func methodNotAllowed(allowed ...string) http.HandlerFunc {
	allow := strings.Join(allowed, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeStatus(w, apierrors.NewMethodNotAllowed(r.Method))
	}
}

func intParam(params url.Values, name string, errs field.ErrorList) (int, field.ErrorList) {
	raw := params.Get(name)
	if raw == "" {
		return 0, errs
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, append(errs, field.Invalid(field.NewPath(name), raw, name+" must be an integer"))
	}
	return v, errs
}

func timeParam(params url.Values, name string, now time.Time, errs field.ErrorList) (time.Time, field.ErrorList) {
	raw := params.Get(name)
	if raw == "" {
		return time.Time{}, errs
	}
	t, err := timeutil.ParseFlexibleTime(raw, now)
	if err != nil {
		return time.Time{}, append(errs, field.Invalid(field.NewPath(name), raw, err.Error()))
	}
	return t, errs
}

// writeError logs err and sends the matching Status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, gk schema.GroupKind, name string) {
	status := apierrors.FromError(err, gk, name)
	if status.Code >= http.StatusInternalServerError {
		klog.ErrorS(err, "Request failed",
			"path", r.URL.Path,
			"code", status.Code,
			"requestID", RequestIDFrom(r.Context()),
		)
	} else {
		klog.V(3).InfoS("Request rejected",
			"path", r.URL.Path,
			"code", status.Code,
			"reason", status.Reason,
			"error", err,
		)
	}
	writeStatus(w, status)
}

func writeStatus(w http.ResponseWriter, status *metav1.Status) {
	writeJSON(w, int(status.Code), status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		klog.ErrorS(err, "Failed to encode response")
	}
}
