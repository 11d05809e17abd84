// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pluginstore/registry/internal/api/middleware"
	"github.com/pluginstore/registry/internal/domain"
	"github.com/pluginstore/registry/internal/models"
	"github.com/pluginstore/registry/internal/services/license"
)

const maxPageSize = 100

// LicenseHandler serves the caller's plugin licenses.
type LicenseHandler struct {
	service *license.Service
}

func NewLicenseHandler(service *license.Service) *LicenseHandler {
	return &LicenseHandler{service: service}
}

// ClaimLicenseRequest is the body of POST /licenses/claim.
type ClaimLicenseRequest struct {
	Key string `json:"key"`
}

// ClaimByEmailRequest is the body of POST /licenses/claim-by-email. An empty
// email claims by the caller's own address.
type ClaimByEmailRequest struct {
	Email string `json:"email"`
}

type ClaimByEmailResponse struct {
	Claimed int `json:"claimed"`
}

// UpdateLicenseRequest is the body of PATCH /licenses/{licenseKey}. Absent
// fields are left unchanged.
type UpdateLicenseRequest struct {
	Notes     *string `json:"notes"`
	Email     *string `json:"email"`
	AutoRenew *bool   `json:"autoRenew"`
}

type ExpiringCountResponse struct {
	Count int `json:"count"`
}

type LicenseListResponse struct {
	Licenses []license.View `json:"licenses"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	Limit    int            `json:"limit"`
}

// RegisterRoutes registers license routes
func (h *LicenseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/licenses", func(r chi.Router) {
		r.Get("/", h.ListLicenses)
		r.Get("/renewable", h.ListRenewable)
		r.Get("/expiring-count", h.ExpiringCount)
		r.Post("/claim", h.ClaimLicense)
		r.Post("/claim-by-email", h.ClaimByEmail)
		r.Get("/{licenseKey}", h.GetLicense)
		r.Patch("/{licenseKey}", h.UpdateLicense)
		r.Delete("/{licenseKey}", h.DeleteLicense)
	})
}

func currentUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		RespondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return user, ok
}

// respondLicenseError maps service errors onto HTTP statuses.
func respondLicenseError(w http.ResponseWriter, err error, fallback string) {
	var persistErr *models.PersistenceError
	var validationErrs models.ValidationErrors

	switch {
	case errors.Is(err, models.ErrLicenseNotFound):
		RespondError(w, http.StatusNotFound, "License not found")
	case errors.Is(err, models.ErrInvalidPluginHandle):
		RespondError(w, http.StatusBadRequest, "Invalid plugin handle")
	case errors.Is(err, models.ErrInvalidEditionHandle):
		RespondError(w, http.StatusBadRequest, "Invalid edition handle")
	case errors.Is(err, models.ErrInvalidSortField):
		RespondError(w, http.StatusBadRequest, "Invalid sort field")
	case errors.Is(err, models.ErrAlreadyClaimed):
		RespondError(w, http.StatusConflict, "License has already been claimed")
	case errors.As(err, &validationErrs):
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field] = fe.Message
		}
		RespondJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Error: "Validation failed", Fields: fields})
	case errors.As(err, &persistErr):
		log.Error().Err(err).Str("op", persistErr.Op).Msg(fallback)
		RespondError(w, http.StatusInternalServerError, fallback)
	default:
		log.Error().Err(err).Msg(fallback)
		RespondError(w, http.StatusInternalServerError, fallback)
	}
}

func (h *LicenseHandler) viewsFor(w http.ResponseWriter, r *http.Request, user models.User, licenses []*models.PluginLicense) ([]license.View, bool) {
	views := make([]license.View, 0, len(licenses))
	for _, l := range licenses {
		view, err := h.service.TransformForOwner(r.Context(), l, user)
		if err != nil {
			respondLicenseError(w, err, "Failed to load license details")
			return nil, false
		}
		views = append(views, view)
	}
	return views, true
}

// ListLicenses returns a page of the caller's licenses.
func (h *LicenseHandler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	orderBy, err := models.ParseSortField(r.URL.Query().Get("orderBy"))
	if err != nil {
		respondLicenseError(w, err, "Failed to list licenses")
		return
	}

	page := ParsePagination(r, models.DefaultPageSize, maxPageSize)
	opts := models.ListOptions{
		Search:    strings.TrimSpace(r.URL.Query().Get("q")),
		OrderBy:   orderBy,
		Limit:     page.Limit,
		Page:      page.Page,
		Ascending: ParseBoolQuery(r, "ascending", true),
	}

	licenses, total, err := h.service.ListByOwner(r.Context(), user.ID, opts)
	if err != nil {
		respondLicenseError(w, err, "Failed to list licenses")
		return
	}

	views, ok := h.viewsFor(w, r, user, licenses)
	if !ok {
		return
	}

	RespondJSON(w, http.StatusOK, LicenseListResponse{
		Licenses: views,
		Total:    total,
		Page:     page.Page,
		Limit:    page.Limit,
	})
}

// ListRenewable returns the caller's licenses that are due for renewal.
func (h *LicenseHandler) ListRenewable(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	licenses, err := h.service.ListRenewable(r.Context(), user.ID)
	if err != nil {
		respondLicenseError(w, err, "Failed to list renewable licenses")
		return
	}

	views, ok := h.viewsFor(w, r, user, licenses)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, views)
}

func (h *LicenseHandler) ExpiringCount(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	count, err := h.service.CountExpiringSoon(r.Context(), user.ID)
	if err != nil {
		respondLicenseError(w, err, "Failed to count expiring licenses")
		return
	}
	RespondJSON(w, http.StatusOK, ExpiringCountResponse{Count: count})
}

// GetLicense returns one license, redacted unless the caller owns it. The
// optional plugin query parameter restricts the lookup to one plugin.
func (h *LicenseHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	key, ok := ParseStringParam(w, r, "licenseKey", "License key")
	if !ok {
		return
	}

	l, err := h.service.GetLicenseByKey(r.Context(), key, license.LookupOptions{
		PluginHandle: r.URL.Query().Get("plugin"),
	})
	if err != nil {
		respondLicenseError(w, err, "Failed to load license")
		return
	}

	view, err := h.service.TransformForOwner(r.Context(), l, user)
	if err != nil {
		respondLicenseError(w, err, "Failed to load license details")
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

func (h *LicenseHandler) ClaimLicense(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ClaimLicenseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		RespondError(w, http.StatusBadRequest, "License key is required")
		return
	}

	l, err := h.service.ClaimLicense(r.Context(), user, req.Key)
	if err != nil {
		respondLicenseError(w, err, "Failed to claim license")
		return
	}

	view, err := h.service.TransformForOwner(r.Context(), l, user)
	if err != nil {
		respondLicenseError(w, err, "Failed to load license details")
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

func (h *LicenseHandler) ClaimByEmail(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ClaimByEmailRequest
	if !DecodeJSONOptional(w, r, &req) {
		return
	}

	claimed, err := h.service.ClaimLicensesByEmail(r.Context(), user, req.Email)
	if err != nil {
		respondLicenseError(w, err, "Failed to claim licenses")
		return
	}
	RespondJSON(w, http.StatusOK, ClaimByEmailResponse{Claimed: claimed})
}

// DeleteLicense removes a license owned by the caller.
func (h *LicenseHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	key, ok := ParseStringParam(w, r, "licenseKey", "License key")
	if !ok {
		return
	}

	l, err := h.service.GetLicenseByKey(r.Context(), key, license.LookupOptions{IncludeDisabled: true})
	if err != nil {
		respondLicenseError(w, err, "Failed to load license")
		return
	}
	if !l.IsOwnedBy(user.ID) {
		RespondError(w, http.StatusForbidden, "License is owned by another account")
		return
	}

	if err := h.service.DeleteByID(r.Context(), l.ID); err != nil {
		respondLicenseError(w, err, "Failed to delete license")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLicense changes the owner-editable fields of a license.
func (h *LicenseHandler) UpdateLicense(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	key, ok := ParseStringParam(w, r, "licenseKey", "License key")
	if !ok {
		return
	}

	var req UpdateLicenseRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	l, err := h.service.GetLicenseByKey(r.Context(), key, license.LookupOptions{})
	if err != nil {
		respondLicenseError(w, err, "Failed to load license")
		return
	}
	if !l.IsOwnedBy(user.ID) {
		RespondError(w, http.StatusForbidden, "License is owned by another account")
		return
	}

	if req.Notes != nil {
		l.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Email != nil {
		l.Email = strings.TrimSpace(*req.Email)
	}
	if req.AutoRenew != nil {
		l.AutoRenew = *req.AutoRenew
	}

	saved, err := h.service.Save(r.Context(), l, true)
	if err != nil {
		respondLicenseError(w, err, "Failed to update license")
		return
	}
	if !saved {
		respondLicenseError(w, l.Errors, "Failed to update license")
		return
	}

	log.Debug().
		Str("licenseKey", domain.MaskLicenseKey(l.Key)).
		Int64("userId", user.ID).
		Msg("License updated via API")

	view, err := h.service.TransformForOwner(r.Context(), l, user)
	if err != nil {
		respondLicenseError(w, err, "Failed to load license details")
		return
	}
	RespondJSON(w, http.StatusOK, view)
}
