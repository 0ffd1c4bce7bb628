// Package scheduler builds the baseline timetable. Trains are placed one by
// one in priority order on a fresh resource timeline, each hop delayed until
// its track and, where platforms are scarce, its arrival platform are free.
// The resulting schedule is feasible by construction but not optimal.
package scheduler
