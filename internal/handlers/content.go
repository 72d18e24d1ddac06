package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"linkhub/internal/entitlement"
	"linkhub/internal/gate"
	"linkhub/internal/models"
	"linkhub/internal/repo"
)

// ContentHandler — страницы и ссылки профиля; квоты тарифа проверяются
// на создании по живому счётчику.
type ContentHandler struct {
	content *repo.ContentStore
}

func NewContentHandler(content *repo.ContentStore) *ContentHandler {
	return &ContentHandler{content: content}
}

// -------- Pages --------

type createPageRequest struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type pageResponse struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	IsDefault bool   `json:"is_default"`
}

func (h *ContentHandler) CreatePage(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	var req createPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" {
		models.WriteError(w, http.StatusBadRequest, "slug is required")
		return
	}

	total, err := h.content.CountPages(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "count pages", err)
		return
	}
	if err := entitlement.CheckQuota(p.Limits, p.Tier.Tier, entitlement.ResourcePages, total+1); err != nil {
		var quotaErr *entitlement.QuotaError
		if errors.As(err, &quotaErr) {
			models.WriteTierError(w, http.StatusForbidden, quotaErr.Error(), quotaErr.Tier)
			return
		}
		internalError(w, r, "page quota", err)
		return
	}

	page := &models.Page{
		ID:        uuid.NewString(),
		AccountID: p.AccountID,
		Slug:      req.Slug,
		Title:     req.Title,
	}
	if err := h.content.CreatePage(r.Context(), page); err != nil {
		internalError(w, r, "create page", err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, pageResponse{
		ID: page.ID, Slug: page.Slug, Title: page.Title,
	})
}

func (h *ContentHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	pages, err := h.content.ListPagesOldestFirst(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "list pages", err)
		return
	}
	out := make([]pageResponse, 0, len(pages))
	for _, pg := range pages {
		out = append(out, pageResponse{ID: pg.ID, Slug: pg.Slug, Title: pg.Title, IsDefault: pg.IsDefault})
	}
	models.WriteJSON(w, http.StatusOK, out)
}

func (h *ContentHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())
	id := mux.Vars(r)["id"]

	pages, err := h.content.ListPagesOldestFirst(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "list pages", err)
		return
	}
	for _, pg := range pages {
		if pg.ID != id {
			continue
		}
		if pg.IsDefault {
			models.WriteError(w, http.StatusConflict, "default page cannot be deleted")
			return
		}
		if err := h.content.DeletePage(r.Context(), id); err != nil {
			internalError(w, r, "delete page", err)
			return
		}
		models.WriteJSON(w, http.StatusOK, struct{}{})
		return
	}
	models.WriteError(w, http.StatusNotFound, "page not found")
}

// -------- Links --------

type createLinkRequest struct {
	PageID       string `json:"page_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	DisplayOrder int    `json:"display_order"`
}

type linkResponse struct {
	ID           string `json:"id"`
	PageID       string `json:"page_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	DisplayOrder int    `json:"display_order"`
	Status       string `json:"status"`
}

func (h *ContentHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		models.WriteError(w, http.StatusBadRequest, "url is required")
		return
	}

	// квота считается по активным ссылкам; неактивные не занимают место
	active, err := h.content.CountActiveLinks(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "count links", err)
		return
	}
	if err := entitlement.CheckQuota(p.Limits, p.Tier.Tier, entitlement.ResourceLinks, active+1); err != nil {
		var quotaErr *entitlement.QuotaError
		if errors.As(err, &quotaErr) {
			models.WriteTierError(w, http.StatusForbidden, quotaErr.Error(), quotaErr.Tier)
			return
		}
		internalError(w, r, "link quota", err)
		return
	}

	link := &models.Link{
		ID:           uuid.NewString(),
		AccountID:    p.AccountID,
		PageID:       req.PageID,
		Title:        req.Title,
		URL:          req.URL,
		DisplayOrder: req.DisplayOrder,
		Status:       models.StatusActive,
	}
	if err := h.content.CreateLink(r.Context(), link); err != nil {
		internalError(w, r, "create link", err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, linkResponse{
		ID: link.ID, PageID: link.PageID, Title: link.Title,
		URL: link.URL, DisplayOrder: link.DisplayOrder, Status: string(link.Status),
	})
}

func (h *ContentHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	p := gate.PrincipalFrom(r.Context())

	links, err := h.content.ListActiveLinksByOrder(r.Context(), p.AccountID)
	if err != nil {
		internalError(w, r, "list links", err)
		return
	}
	out := make([]linkResponse, 0, len(links))
	for _, l := range links {
		out = append(out, linkResponse{
			ID: l.ID, PageID: l.PageID, Title: l.Title,
			URL: l.URL, DisplayOrder: l.DisplayOrder, Status: string(l.Status),
		})
	}
	models.WriteJSON(w, http.StatusOK, out)
}
