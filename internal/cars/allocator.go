package cars

import "sort"

// AllocateID returns the smallest positive integer not present in existing.
// Car ids are the numbers people say out loud in the channel ("join car 2"),
// so gaps left by deleted cars are reused instead of growing forever. Linear
// over the sorted id set; a channel holds at most a handful of cars.
func AllocateID(existing []int) int {
	ids := make([]int, 0, len(existing))
	for _, id := range existing {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	next := 1
	for _, id := range ids {
		if id == next {
			next++
			continue
		}
		if id > next {
			break
		}
	}
	return next
}
