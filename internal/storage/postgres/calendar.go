package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/crmstore/internal/storage"
	"github.com/scrypster/crmstore/pkg/types"
)

const calendarColumns = `id, user_id, contact_id, title, description, location, start_time, end_time, event_type, created_at, updated_at`

// CalendarRepository implements storage.CalendarRepository using PostgreSQL.
type CalendarRepository struct {
	h Handle
	t *table[types.CalendarEvent]
}

// NewCalendarRepository creates a calendar event repository on h.
func NewCalendarRepository(h Handle) *CalendarRepository {
	return &CalendarRepository{
		h: h,
		t: &table[types.CalendarEvent]{
			name:        "calendar_events",
			columns:     calendarColumns,
			scan:        scanCalendarEvent,
			sortable:    map[string]bool{"start_time": true, "end_time": true, "created_at": true, "title": true},
			defaultSort: "start_time",
			touch:       true,
		},
	}
}

// List returns one page of the user's events matching filter.
func (r *CalendarRepository) List(ctx context.Context, userID string, filter types.CalendarEventFilter, opts storage.ListOptions) (*storage.PaginatedResult[types.CalendarEvent], error) {
	const op = "postgres: list calendar events"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	w := (&where{}).eq("user_id", userID).
		eqIf("contact_id", filter.ContactID).
		eqIf("event_type", filter.EventType).
		after("start_time", filter.StartsAfter).
		before("start_time", filter.StartsBefore)
	return r.t.list(ctx, r.h, op, w, opts)
}

// ListUpcoming returns up to limit events starting at or after from, soonest
// first.
func (r *CalendarRepository) ListUpcoming(ctx context.Context, userID string, from time.Time, limit int) ([]types.CalendarEvent, error) {
	const op = "postgres: list upcoming calendar events"
	if err := requireUser(op, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultPageSize
	}
	query := "SELECT " + calendarColumns + ` FROM calendar_events
		WHERE user_id = $1 AND start_time >= $2
		ORDER BY start_time ASC, id ASC
		LIMIT $3`
	return r.t.query(ctx, r.h, op, query, userID, from, limit)
}

// Get retrieves an event by ID. Returns nil when it does not exist.
func (r *CalendarRepository) Get(ctx context.Context, userID, id string) (*types.CalendarEvent, error) {
	return r.t.get(ctx, r.h, "postgres: get calendar event", (&where{}).eq("user_id", userID).eq("id", id))
}

// Create inserts an event and returns the stored row.
func (r *CalendarRepository) Create(ctx context.Context, ev *types.CalendarEvent) (*types.CalendarEvent, error) {
	const op = "postgres: create calendar event"
	if ev == nil {
		return nil, storage.ErrInvalidInput
	}
	if err := requireUser(op, ev.UserID); err != nil {
		return nil, err
	}
	if ev.StartTime.IsZero() || ev.EndTime.IsZero() {
		return nil, fmt.Errorf("%s: %w: start and end time are required", op, storage.ErrInvalidInput)
	}

	e := *ev
	stamp(&e.CreatedAt, &e.UpdatedAt)

	return r.t.insert(ctx, r.h, op,
		[]string{"id", "user_id", "contact_id", "title", "description", "location", "start_time", "end_time", "event_type", "created_at", "updated_at"},
		newID(e.ID), e.UserID, nullableString(e.ContactID), e.Title, nullableString(e.Description),
		nullableString(e.Location), e.StartTime, e.EndTime, nullableString(e.EventType), e.CreatedAt, e.UpdatedAt,
	)
}

// Update applies p to an event. Returns nil when it does not exist.
func (r *CalendarRepository) Update(ctx context.Context, userID, id string, p types.CalendarEventPatch) (*types.CalendarEvent, error) {
	var set patch
	if p.ContactID != nil {
		set.set("contact_id", nullableString(*p.ContactID))
	}
	if p.Title != nil {
		set.set("title", *p.Title)
	}
	if p.Description != nil {
		set.set("description", nullableString(*p.Description))
	}
	if p.Location != nil {
		set.set("location", nullableString(*p.Location))
	}
	if p.StartTime != nil {
		set.set("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		set.set("end_time", *p.EndTime)
	}
	if p.EventType != nil {
		set.set("event_type", nullableString(*p.EventType))
	}
	return r.t.update(ctx, r.h, "postgres: update calendar event", &set, (&where{}).eq("user_id", userID).eq("id", id))
}

// Delete removes an event.
func (r *CalendarRepository) Delete(ctx context.Context, userID, id string) (int64, error) {
	return r.t.delete(ctx, r.h, "postgres: delete calendar event", (&where{}).eq("user_id", userID).eq("id", id))
}

// DeleteAllForUser removes every event the user owns.
func (r *CalendarRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	const op = "postgres: delete calendar events for user"
	if err := requireUser(op, userID); err != nil {
		return 0, err
	}
	return r.t.delete(ctx, r.h, op, (&where{}).eq("user_id", userID))
}

func scanCalendarEvent(s scanner) (types.CalendarEvent, error) {
	var (
		e           types.CalendarEvent
		contactID   sql.NullString
		description sql.NullString
		location    sql.NullString
		eventType   sql.NullString
	)
	err := s.Scan(&e.ID, &e.UserID, &contactID, &e.Title, &description, &location,
		&e.StartTime, &e.EndTime, &eventType, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.ContactID = contactID.String
	e.Description = description.String
	e.Location = location.String
	e.EventType = eventType.String
	return e, nil
}
