// Package schema defines the value records shared by the planner: events,
// tasks, focus preferences, travel segments, locations and accounts.
//
// Records reference each other by identifier only (Task.EventID,
// Event.TaskID, TravelSegment.FromEventID...). Lookups go through the store;
// nothing here holds a pointer to another record.
package schema
