package domain

// Theme describes a poster color scheme as shipped with the renderer.
// ID is the theme file's base name and the value clients submit.
type Theme struct {
	ID          string
	Name        string
	Description string
	Background  string
	Text        string
}
