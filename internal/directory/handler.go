package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hitechnics/supplydb/internal/categories"
	"github.com/hitechnics/supplydb/internal/platform/httpx"
	"github.com/hitechnics/supplydb/internal/view"
)

// Handler wires the supplier directory's two views and its JSON
// endpoints. Store failures on mutations are logged and otherwise
// swallowed; the client only ever learns about a change through the
// next snapshot.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	categories *categories.List
	templates  *view.Engine
	validator  *validator.Validate
	basePath   string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cats *categories.List, templates *view.Engine, basePath string) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		categories: cats,
		templates:  templates,
		validator:  validator.New(),
		basePath:   basePath,
	}
}

type supplierForm struct {
	ID       string
	Name     string `validate:"required"`
	Origin   string
	Category string
	Desc     string
}

// List renders the list/search view. The three filter controls arrive
// as query parameters and the full snapshot is re-filtered per
// request.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		Search:   r.URL.Query().Get("search"),
		Supplier: r.URL.Query().Get("supplier"),
		Category: r.URL.Query().Get("category"),
	}

	all := h.service.Suppliers()
	h.render(w, r, "pages/suppliers_list.html", map[string]any{
		"Suppliers":  filter.Apply(all),
		"All":        all,
		"Filter":     filter,
		"Categories": h.categories.All(),
	}, http.StatusOK)
}

// EditView renders the add/edit view, pre-filled when ?id= names an
// existing supplier.
func (h *Handler) EditView(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Categories": h.categories.All(),
		"Error":      "",
		"Draft":      Draft{},
		"EditID":     "",
	}
	if id := r.URL.Query().Get("id"); id != "" {
		if sup, ok := h.service.Get(id); ok {
			data["Draft"] = Draft{Name: sup.Name, Origin: sup.Origin, Category: sup.Category, Desc: sup.Desc}
			data["EditID"] = id
		}
	}
	h.render(w, r, "pages/supplier_edit.html", data, http.StatusOK)
}

// Save handles the form submit for both create and update.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	form := supplierForm{
		ID:       r.PostFormValue("id"),
		Name:     r.PostFormValue("name"),
		Origin:   r.PostFormValue("origin"),
		Category: r.PostFormValue("category"),
		Desc:     r.PostFormValue("desc"),
	}

	draft := Draft{Name: form.Name, Origin: form.Origin, Category: form.Category, Desc: form.Desc}
	if msg := h.validateForm(form); msg != "" {
		h.renderEditError(w, r, draft, form.ID, msg)
		return
	}

	if _, err := h.service.Save(r.Context(), draft, form.ID); err != nil {
		switch {
		case errors.Is(err, ErrEmptyName):
			h.renderEditError(w, r, draft, form.ID, "Supplier name cannot be empty")
		case errors.Is(err, ErrDuplicateName):
			h.renderEditError(w, r, draft, form.ID, fmt.Sprintf("Supplier %q already exists", form.Name))
		default:
			// Store failures are not surfaced; the list simply
			// stays at the last echoed snapshot.
			h.logger.Error("save supplier", "error", err)
			http.Redirect(w, r, h.basePath, http.StatusSeeOther)
		}
		return
	}

	http.Redirect(w, r, h.basePath, http.StatusSeeOther)
}

func (h *Handler) validateForm(form supplierForm) string {
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				if fe.Field() == "Name" {
					return "Supplier name cannot be empty"
				}
			}
		}
		return "Invalid input"
	}
	if form.Category != "" && !h.categories.Has(form.Category) {
		return "Select a valid category"
	}
	return ""
}

func (h *Handler) renderEditError(w http.ResponseWriter, r *http.Request, draft Draft, editID, msg string) {
	h.render(w, r, "pages/supplier_edit.html", map[string]any{
		"Categories": h.categories.All(),
		"Error":      msg,
		"Draft":      draft,
		"EditID":     editID,
	}, http.StatusBadRequest)
}

// Delete removes a supplier and returns to the list view.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete supplier", "error", err, "id", id)
	}
	http.Redirect(w, r, h.basePath, http.StatusSeeOther)
}

// SetCategory patches one supplier's category from the inline
// dropdown on its card.
func (h *Handler) SetCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Category string `json:"category"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if body.Category != "" && !h.categories.Has(body.Category) {
		httpx.RespondError(w, fmt.Errorf("unknown category %q: %w", body.Category, httpx.ErrValidation))
		return
	}
	if err := h.service.SetCategory(r.Context(), id, body.Category); err != nil {
		h.logger.Error("set category", "error", err, "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddProduct appends a product row to a supplier.
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body Product
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.service.AddProduct(r.Context(), id, body); err != nil {
		h.logger.Error("add product", "error", err, "id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProduct replaces one product row; the inline editor posts
// here on every keystroke.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("bad product index: %w", httpx.ErrValidation))
		return
	}
	var body Product
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.service.UpdateProduct(r.Context(), id, index, body); err != nil {
		h.logger.Error("update product", "error", err, "id", id, "index", index)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveProduct deletes the product row at a position.
func (h *Handler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("bad product index: %w", httpx.ErrValidation))
		return
	}
	if err := h.service.RemoveProduct(r.Context(), id, index); err != nil {
		h.logger.Error("remove product", "error", err, "id", id, "index", index)
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddCategory handles the category manager's add form.
func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	h.categories.Add(r.PostFormValue("name"))
	http.Redirect(w, r, h.basePath+"/edit", http.StatusSeeOther)
}

// RemoveCategory handles the category manager's delete buttons.
func (h *Handler) RemoveCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	h.categories.Remove(r.PostFormValue("name"))
	http.Redirect(w, r, h.basePath+"/edit", http.StatusSeeOther)
}

// Events streams a server-sent event per supplier snapshot so the
// list view can reload itself when the store changes.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changes, unsub, err := h.service.Watch(r.Context())
	if err != nil {
		h.logger.Error("watch suppliers", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-changes:
			if _, err := fmt.Fprint(w, "event: change\ndata: {}\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	viewData := view.TemplateData{
		Title:       "Hi Technics Supplier Database",
		BasePath:    h.basePath,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	// Headers must be in place before WriteHeader flushes them.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", "error", err, "template", template)
	}
}
