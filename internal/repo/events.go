package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JamesPrial/officedesk/internal/docstore"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// Viewer identifies whose calendar is being shown.
type Viewer struct {
	ID         string
	Supervisor bool
}

// CanSee reports whether v may see ev. Reminders are private to their owner;
// shifts are visible to their owner and to supervisors.
func (v Viewer) CanSee(ev storage.CalendarEvent) bool {
	if ev.OwnerID == v.ID {
		return true
	}
	return ev.Type == storage.EventShift && v.Supervisor
}

// EventRepo manages the calendar events slice.
type EventRepo struct {
	gw  *docstore.Gateway
	now func() time.Time
}

// Fetch returns all events regardless of visibility.
func (r *EventRepo) Fetch(ctx context.Context) ([]storage.CalendarEvent, error) {
	doc, err := r.gw.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Events, nil
}

// Visible returns the events v may see.
func (r *EventRepo) Visible(ctx context.Context, v Viewer) ([]storage.CalendarEvent, error) {
	events, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]storage.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if v.CanSee(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Add appends ev. A missing id is generated and a missing createdAt is stamped.
func (r *EventRepo) Add(ctx context.Context, ev storage.CalendarEvent) ([]storage.CalendarEvent, error) {
	if err := validEventType(ev.Type); err != nil {
		return nil, err
	}
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.CreatedAt == "" {
			ev.CreatedAt = stamp(r.now())
		}
		events := make([]storage.CalendarEvent, 0, len(doc.Events)+1)
		for _, existing := range doc.Events {
			if existing.ID != ev.ID {
				events = append(events, existing)
			}
		}
		events = append(events, ev)
		return doc.WithEvents(events), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Events, nil
}

// Update replaces the event with ev.ID.
func (r *EventRepo) Update(ctx context.Context, ev storage.CalendarEvent) ([]storage.CalendarEvent, error) {
	if err := validEventType(ev.Type); err != nil {
		return nil, err
	}
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		for i, existing := range doc.Events {
			if existing.ID != ev.ID {
				continue
			}
			if ev.CreatedAt == "" {
				ev.CreatedAt = existing.CreatedAt
			}
			events := make([]storage.CalendarEvent, len(doc.Events))
			copy(events, doc.Events)
			events[i] = ev
			return doc.WithEvents(events), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, ev.ID)
	})
	if err != nil {
		return nil, err
	}
	return doc.Events, nil
}

// Delete removes event id. Deleting an unknown id changes nothing.
func (r *EventRepo) Delete(ctx context.Context, id string) ([]storage.CalendarEvent, error) {
	doc, err := r.gw.Update(ctx, func(doc *storage.Document) (*storage.Document, error) {
		events := make([]storage.CalendarEvent, 0, len(doc.Events))
		for _, ev := range doc.Events {
			if ev.ID != id {
				events = append(events, ev)
			}
		}
		if len(events) == len(doc.Events) {
			return doc, nil
		}
		return doc.WithEvents(events), nil
	})
	if err != nil {
		return nil, err
	}
	return doc.Events, nil
}

func validEventType(t string) error {
	if t == storage.EventShift || t == storage.EventReminder {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidEventType, t)
}
