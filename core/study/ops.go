package study

import (
	"context"

	"github.com/trezcool/studyplanner/core"
)

// Homework

func (s *Store) AddHomework(ctx context.Context, hw Homework) (Homework, error) {
	const op, msg = "add homework", "Failed to add homework"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return Homework{}, err
	}

	row := homeworkToRow(hw)
	row["user_id"] = usrID
	created, err := s.tables.Insert(ctx, core.TableHomework, row)
	if err != nil {
		return Homework{}, s.writeFailed(ctx, op, msg, err)
	}

	hw = homeworkFromRow(created)
	s.apply(usrID, func() { s.homework = appendUnique(s.homework, hw) })
	return hw, nil
}

func (s *Store) UpdateHomework(ctx context.Context, id string, patch HomeworkPatch) error {
	const op, msg = "update homework", "Failed to update homework"
	row := homeworkPatchToRow(patch)
	if len(row) == 0 {
		return nil
	}
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Update(ctx, core.TableHomework, ownedRow(usrID, id), row); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { updateByID(s.homework, id, patch.apply) })
	return nil
}

func (s *Store) DeleteHomework(ctx context.Context, id string) error {
	const op, msg = "delete homework", "Failed to delete homework"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Delete(ctx, core.TableHomework, ownedRow(usrID, id)); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { s.homework = removeByID(s.homework, id) })
	return nil
}

// Calendar events

func (s *Store) AddCalendarEvent(ctx context.Context, ev CalendarEvent) (CalendarEvent, error) {
	const op, msg = "add calendar event", "Failed to add calendar event"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return CalendarEvent{}, err
	}

	row := calendarEventToRow(ev)
	row["user_id"] = usrID
	created, err := s.tables.Insert(ctx, core.TableCalendarEvents, row)
	if err != nil {
		return CalendarEvent{}, s.writeFailed(ctx, op, msg, err)
	}

	ev = calendarEventFromRow(created)
	s.apply(usrID, func() { s.events = appendUnique(s.events, ev) })
	return ev, nil
}

func (s *Store) UpdateCalendarEvent(ctx context.Context, id string, patch CalendarEventPatch) error {
	const op, msg = "update calendar event", "Failed to update calendar event"
	row := calendarEventPatchToRow(patch)
	if len(row) == 0 {
		return nil
	}
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Update(ctx, core.TableCalendarEvents, ownedRow(usrID, id), row); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { updateByID(s.events, id, patch.apply) })
	return nil
}

func (s *Store) DeleteCalendarEvent(ctx context.Context, id string) error {
	const op, msg = "delete calendar event", "Failed to delete calendar event"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Delete(ctx, core.TableCalendarEvents, ownedRow(usrID, id)); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { s.events = removeByID(s.events, id) })
	return nil
}

// Grades

func (s *Store) AddGrade(ctx context.Context, g Grade) (Grade, error) {
	const op, msg = "add grade", "Failed to add grade"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return Grade{}, err
	}

	row := gradeToRow(g)
	row["user_id"] = usrID
	created, err := s.tables.Insert(ctx, core.TableGrades, row)
	if err != nil {
		return Grade{}, s.writeFailed(ctx, op, msg, err)
	}

	g = gradeFromRow(created)
	s.apply(usrID, func() { s.grades = appendUnique(s.grades, g) })
	return g, nil
}

func (s *Store) UpdateGrade(ctx context.Context, id string, patch GradePatch) error {
	const op, msg = "update grade", "Failed to update grade"
	row := gradePatchToRow(patch)
	if len(row) == 0 {
		return nil
	}
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Update(ctx, core.TableGrades, ownedRow(usrID, id), row); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { updateByID(s.grades, id, patch.apply) })
	return nil
}

func (s *Store) DeleteGrade(ctx context.Context, id string) error {
	const op, msg = "delete grade", "Failed to delete grade"
	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}

	if err = s.tables.Delete(ctx, core.TableGrades, ownedRow(usrID, id)); err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	s.apply(usrID, func() { s.grades = removeByID(s.grades, id) })
	return nil
}

// Timetable

// UpdateTimetable stores slot at (day, period), keeping at most one entry per slot:
// an occupied slot is updated, a free one gets a new entry. A nil or empty slot clears it,
// which is a no-op without any backend call when the slot is already free.
func (s *Store) UpdateTimetable(ctx context.Context, day string, period int, slot *TimetableSlot) error {
	const op, msg = "update timetable", "Failed to update timetable"

	s.mu.RLock()
	existing, occupied := s.slotEntry(day, period)
	s.mu.RUnlock()

	if slot.IsEmpty() {
		if !occupied {
			return nil
		}
		usrID, err := s.guard(ctx, op, msg)
		if err != nil {
			return err
		}
		if err = s.tables.Delete(ctx, core.TableTimetable, ownedRow(usrID, existing.ID)); err != nil {
			return s.writeFailed(ctx, op, msg, err)
		}
		s.apply(usrID, func() { s.timetable = removeByID(s.timetable, existing.ID) })
		return nil
	}

	usrID, err := s.guard(ctx, op, msg)
	if err != nil {
		return err
	}
	row := timetableSlotToRow(*slot)

	if occupied {
		if err = s.tables.Update(ctx, core.TableTimetable, ownedRow(usrID, existing.ID), row); err != nil {
			return s.writeFailed(ctx, op, msg, err)
		}
		s.apply(usrID, func() { updateByID(s.timetable, existing.ID, slot.apply) })
		return nil
	}

	row["user_id"] = usrID
	row["day"] = day
	row["period"] = period
	created, err := s.tables.Insert(ctx, core.TableTimetable, row)
	if err != nil {
		return s.writeFailed(ctx, op, msg, err)
	}
	te := timetableEntryFromRow(created)
	s.apply(usrID, func() {
		// a concurrent insert may have filled the slot meanwhile
		if cur, ok := s.slotEntry(day, period); ok && cur.ID != te.ID {
			s.timetable = removeByID(s.timetable, cur.ID)
		}
		s.timetable = appendUnique(s.timetable, te)
	})
	return nil
}
