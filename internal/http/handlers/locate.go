package handlers

import (
	"net/http"

	"posterd/internal/middleware"
)

// Locate returns a best-effort ISO country code for the caller, used by
// the frontend to prefill the country field. Empty when nothing matched.
func (a *App) Locate(w http.ResponseWriter, r *http.Request) {
	country := middleware.ResolveCountry(r, a.Country)
	a.json(w, http.StatusOK, map[string]string{"country": country})
}
