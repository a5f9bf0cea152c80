package ics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
)

// MaxOccurrences caps the expansion of a single recurring event.
const MaxOccurrences = 2000

// vevent is one VEVENT reduced to what the planner keeps.
type vevent struct {
	uid      string
	summary  string
	location string
	start    time.Time
	end      time.Time
	allDay   bool
	rrule    string
	exdates  []time.Time
	recurID  *time.Time
}

// Parse reads an iCalendar stream and returns the timed events overlapping
// [from, to), recurrences expanded. All-day entries are skipped: they carry
// no time-of-day interval. Malformed VEVENTs are skipped; a stream that is
// not iCalendar at all is an error.
func Parse(r io.Reader, from, to time.Time) ([]remote.Event, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var base []vevent
	overrides := map[string][]vevent{}
	for _, comp := range cal.Events() {
		ev, err := readVEvent(comp)
		if err != nil || ev.allDay {
			continue
		}
		if ev.recurID != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		base = append(base, ev)
	}

	var out []remote.Event
	for _, ev := range base {
		out = append(out, expand(ev, overrides[ev.uid], from, to)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func readVEvent(ve *ical.VEvent) (vevent, error) {
	var out vevent
	p := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if p == nil || p.Value == "" {
		return out, errors.New("missing UID")
	}
	out.uid = p.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = p.Value
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return out, errors.New("missing DTSTART")
	}
	if !strings.Contains(dtstart.Value, "T") {
		out.allDay = true
		return out, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("bad DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil || !end.After(start) {
		return out, errors.New("missing or empty DTEND")
	}
	out.start, out.end = start, end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, start.Location()); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}
	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseTime(p.Value, start.Location()); err == nil {
			out.recurID = &t
		}
	}
	return out, nil
}

func expand(ev vevent, overrides []vevent, from, to time.Time) []remote.Event {
	window := schema.Slot{Start: from, End: to}

	if ev.rrule == "" {
		occ := schema.Slot{Start: ev.start, End: ev.end}
		if !occ.Overlaps(window) {
			return nil
		}
		return []remote.Event{toRemote(ev, ev.uid, occ.Start, occ.End)}
	}

	rule, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil
	}
	rule.DTStart(ev.start)
	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.exdates {
		set.ExDate(ex)
	}

	length := ev.end.Sub(ev.start)
	// Occurrences starting up to one duration before the window can still
	// overlap it.
	starts := set.Between(from.Add(-length).In(ev.start.Location()), to.In(ev.start.Location()), true)
	if len(starts) > MaxOccurrences {
		starts = starts[:MaxOccurrences]
	}

	var out []remote.Event
	for _, s := range starts {
		id := instanceID(ev.uid, s)
		inst, start, end := ev, s, s.Add(length)
		if o, ok := findOverride(overrides, s); ok {
			inst, start, end = o, o.start, o.end
		}
		if !(schema.Slot{Start: start, End: end}).Overlaps(window) {
			continue
		}
		out = append(out, toRemote(inst, id, start, end))
	}
	return out
}

func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	for _, o := range overrides {
		if o.recurID.Equal(start) {
			return o, true
		}
	}
	return vevent{}, false
}

// instanceID names one occurrence of a recurring event.
func instanceID(uid string, start time.Time) string {
	return uid + "@" + start.UTC().Format("20060102T150405Z")
}

func toRemote(ev vevent, id string, start, end time.Time) remote.Event {
	out := remote.Event{ID: id, Title: ev.summary, Start: start.UTC(), End: end.UTC()}
	if out.Title == "" {
		out.Title = "(untitled)"
	}
	if loc := strings.TrimSpace(ev.location); loc != "" {
		out.Location = &schema.Location{Name: loc, Address: loc}
	}
	return out
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
