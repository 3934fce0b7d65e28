package appointment

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type CalendarDay struct {
	Date  string // YYYY-MM-DD
	Staff []StaffGroup
}

type StaffGroup struct {
	StaffID      *uuid.UUID
	StaffName    *string
	Appointments []Appointment
}

// BuildCalendar groups appointments by calendar day in loc, then by staff.
// Days ascend by date, staff groups ascend by id with the unassigned group
// last. Appointments keep their input order inside a group.
func BuildCalendar(appts []Appointment, loc *time.Location, staffNames map[uuid.UUID]string) []CalendarDay {
	if loc == nil {
		loc = time.UTC
	}

	days := []CalendarDay{}
	dayIndex := make(map[string]int)
	staffIndex := make(map[string]map[string]int)

	for _, a := range appts {
		date := a.ScheduledDate.In(loc).Format("2006-01-02")

		di, ok := dayIndex[date]
		if !ok {
			di = len(days)
			dayIndex[date] = di
			staffIndex[date] = make(map[string]int)
			days = append(days, CalendarDay{Date: date, Staff: []StaffGroup{}})
		}

		key := ""
		if a.StaffID != nil {
			key = a.StaffID.String()
		}

		si, ok := staffIndex[date][key]
		if !ok {
			group := StaffGroup{Appointments: []Appointment{}}
			if a.StaffID != nil {
				id := *a.StaffID
				group.StaffID = &id
				if name, found := staffNames[id]; found {
					group.StaffName = &name
				}
			}
			si = len(days[di].Staff)
			staffIndex[date][key] = si
			days[di].Staff = append(days[di].Staff, group)
		}

		days[di].Staff[si].Appointments = append(days[di].Staff[si].Appointments, a)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	for i := range days {
		groups := days[i].Staff
		sort.SliceStable(groups, func(a, b int) bool {
			ga, gb := groups[a].StaffID, groups[b].StaffID
			switch {
			case ga == nil:
				return false
			case gb == nil:
				return true
			default:
				return ga.String() < gb.String()
			}
		})
	}

	return days
}
