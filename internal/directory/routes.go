package directory

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the directory UI and its JSON endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/edit", h.EditView)
	r.Get("/events", h.Events)

	r.Post("/suppliers", h.Save)
	r.Post("/suppliers/{id}/delete", h.Delete)
	r.Post("/suppliers/{id}/category", h.SetCategory)
	r.Post("/suppliers/{id}/products", h.AddProduct)
	r.Put("/suppliers/{id}/products/{index}", h.UpdateProduct)
	r.Post("/suppliers/{id}/products/{index}/delete", h.RemoveProduct)

	r.Post("/categories", h.AddCategory)
	r.Post("/categories/delete", h.RemoveCategory)
}
