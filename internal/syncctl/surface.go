package syncctl

import (
	"fmt"
	"strings"
)

// Surface is an editing surface whose in-memory form state a background
// reload must not replace.
type Surface int

const (
	SurfaceAssignment Surface = iota
	SurfaceDate
	SurfaceNoteEditor
	SurfaceMiscTask
	SurfaceDeleteConfirm
	SurfaceGallery
	SurfaceClientDrawer
	SurfaceUserManagement
	SurfaceCalendarEvent
	SurfaceClientDelete
)

var surfaceNames = [...]string{
	SurfaceAssignment:     "assignment",
	SurfaceDate:           "date",
	SurfaceNoteEditor:     "note_editor",
	SurfaceMiscTask:       "misc_task",
	SurfaceDeleteConfirm:  "delete_confirm",
	SurfaceGallery:        "gallery",
	SurfaceClientDrawer:   "client_drawer",
	SurfaceUserManagement: "user_management",
	SurfaceCalendarEvent:  "calendar_event",
	SurfaceClientDelete:   "client_delete",
}

// Surfaces lists every known surface.
func Surfaces() []Surface {
	out := make([]Surface, len(surfaceNames))
	for i := range surfaceNames {
		out[i] = Surface(i)
	}
	return out
}

func (s Surface) String() string {
	if s < 0 || int(s) >= len(surfaceNames) {
		return fmt.Sprintf("surface(%d)", int(s))
	}
	return surfaceNames[s]
}

// ParseSurface maps a surface name (as produced by String) back to a Surface.
func ParseSurface(name string) (Surface, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, known := range surfaceNames {
		if known == n {
			return Surface(i), nil
		}
	}
	return 0, fmt.Errorf("unknown surface %q", name)
}
