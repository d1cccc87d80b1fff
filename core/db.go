package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrdering turns "-created_at,kind" into orderings, keeping only fields listed in allowed.
func ParseOrdering(s string, allowed ...string) []DBOrdering {
	ords := make([]DBOrdering, 0)
	for _, part := range strings.Split(s, ",") {
		part = CleanString(part, true)
		if part == "" {
			continue
		}
		ord := DBOrdering{Field: part, Ascending: true}
		if strings.HasPrefix(part, "-") {
			ord = DBOrdering{Field: part[1:]}
		}
		for _, fld := range allowed {
			if fld == ord.Field {
				ords = append(ords, ord)
				break
			}
		}
	}
	return ords
}
