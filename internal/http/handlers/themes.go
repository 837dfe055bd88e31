package handlers

import "net/http"

func (a *App) ThemesList(w http.ResponseWriter, r *http.Request) {
	list := a.Themes.List()
	items := make([]map[string]any, 0, len(list))
	for _, t := range list {
		items = append(items, map[string]any{
			"id":          t.ID,
			"name":        t.Name,
			"description": t.Description,
			"bg":          t.Background,
			"text":        t.Text,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"themes": items})
}
