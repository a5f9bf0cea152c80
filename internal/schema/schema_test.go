package schema

import (
	"strings"
	"testing"
	"time"
)

func TestEvent_Validate(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	valid := func() Event {
		e := Event{
			ID:         "ev-1",
			UserID:     "u1",
			Title:      "Standup",
			Start:      start,
			End:        start.Add(time.Hour),
			Status:     StatusPlanned,
			Source:     SourceLocal,
			SyncStatus: SyncUnsynced,
		}
		return e
	}

	tests := []struct {
		name    string
		mutate  func(e *Event)
		wantErr bool
		errMsg  string
	}{
		{name: "valid event", mutate: func(e *Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.ID = "" }, wantErr: true, errMsg: "id is required"},
		{name: "missing user", mutate: func(e *Event) { e.UserID = "" }, wantErr: true, errMsg: "user_id is required"},
		{name: "missing title", mutate: func(e *Event) { e.Title = "" }, wantErr: true, errMsg: "title is required"},
		{
			name:    "end equals start",
			mutate:  func(e *Event) { e.End = e.Start },
			wantErr: true,
			errMsg:  "start must be before end",
		},
		{
			name:    "unknown status",
			mutate:  func(e *Event) { e.Status = "archived" },
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name: "synced remote without remote id",
			mutate: func(e *Event) {
				e.Source = SourceRemote
				e.SyncStatus = SyncSynced
			},
			wantErr: true,
			errMsg:  "requires remote_id",
		},
		{
			name: "synced remote with remote id",
			mutate: func(e *Event) {
				e.Source = SourceRemote
				e.SyncStatus = SyncSynced
				e.RemoteID = "g-123"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.mutate(&e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestEvent_SetDefaults(t *testing.T) {
	e := &Event{UserID: "u1", Title: "x"}
	e.SetDefaults()

	if e.ID == "" {
		t.Error("SetDefaults() left ID empty")
	}
	if e.Status != StatusPlanned {
		t.Errorf("Status = %q, want %q", e.Status, StatusPlanned)
	}
	if e.Source != SourceLocal {
		t.Errorf("Source = %q, want %q", e.Source, SourceLocal)
	}
	if e.SyncStatus != SyncUnsynced {
		t.Errorf("SyncStatus = %q, want %q", e.SyncStatus, SyncUnsynced)
	}
}

func TestTask_Validate(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid task",
			task: Task{ID: "t1", UserID: "u1", Title: "Write report", DurationMinutes: 30, Priority: 1},
		},
		{
			name:    "zero duration",
			task:    Task{ID: "t1", UserID: "u1", Title: "Write report"},
			wantErr: true,
			errMsg:  "duration must be positive",
		},
		{
			name:    "negative priority",
			task:    Task{ID: "t1", UserID: "u1", Title: "Write report", DurationMinutes: 30, Priority: -1},
			wantErr: true,
			errMsg:  "priority must not be negative",
		},
		{
			name:    "missing title",
			task:    Task{ID: "t1", UserID: "u1", DurationMinutes: 30},
			wantErr: true,
			errMsg:  "title is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestTask_Pending(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want bool
	}{
		{"fresh", Task{}, true},
		{"placed", Task{EventID: "ev-1"}, false},
		{"late", Task{Late: true}, false},
		{"done", Task{Done: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.Pending(); got != tt.want {
				t.Errorf("Pending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortForPlacement(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	d1 := day.Add(24 * time.Hour)
	d2 := day.Add(48 * time.Hour)

	tasks := []*Task{
		{ID: "no-deadline-p1", Priority: 1, Seq: 1},
		{ID: "d2-p1", Priority: 1, Deadline: &d2, Seq: 2},
		{ID: "d1-p3", Priority: 3, Deadline: &d1, Seq: 3},
		{ID: "d1-p1-late-insert", Priority: 1, Deadline: &d1, Seq: 5},
		{ID: "d1-p1", Priority: 1, Deadline: &d1, Seq: 4},
		{ID: "no-deadline-p0", Priority: 0, Seq: 6},
	}

	SortForPlacement(tasks)

	want := []string{"d1-p1", "d1-p1-late-insert", "d1-p3", "d2-p1", "no-deadline-p0", "no-deadline-p1"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, tasks[i].ID, id)
		}
	}
}

func TestSlot_Overlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		a, b Slot
		want bool
	}{
		{"partial overlap", Slot{at(10, 0), at(11, 0)}, Slot{at(10, 30), at(11, 30)}, true},
		{"containment", Slot{at(9, 0), at(12, 0)}, Slot{at(10, 0), at(11, 0)}, true},
		{"touching", Slot{at(10, 0), at(11, 0)}, Slot{at(11, 0), at(12, 0)}, false},
		{"disjoint", Slot{at(8, 0), at(9, 0)}, Slot{at(10, 0), at(11, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistinctLocations(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	office := &Location{Address: "1 Rue de Rivoli, Paris", Latitude: f(48.8556), Longitude: f(2.3522)}
	officeAgain := &Location{Address: "1  rue de rivoli,  Paris"}
	gym := &Location{Address: "Gym", Latitude: f(48.87), Longitude: f(2.30)}

	tests := []struct {
		name string
		a, b *Location
		want bool
	}{
		{"different coordinates", office, gym, true},
		{"same address different spacing", &Location{Address: office.Address}, officeAgain, false},
		{"missing side", office, nil, false},
		{"empty address", office, &Location{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distinct(tt.a, tt.b); got != tt.want {
				t.Errorf("Distinct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseFocusBand(t *testing.T) {
	b, err := ParseFocusBand(" Afternoon ")
	if err != nil {
		t.Fatalf("ParseFocusBand() error = %v", err)
	}
	if start, end := b.Hours(); start != 14 || end != 17 {
		t.Errorf("Hours() = %d-%d, want 14-17", start, end)
	}
	if _, err := ParseFocusBand("night"); err == nil {
		t.Error("ParseFocusBand(night) expected error")
	}
}
