package booking

// nextMonth advances one month with year rollover at December.
func nextMonth(month, year int) (int, int) {
	if month == 12 {
		return 1, year + 1
	}
	return month + 1, year
}

// prevMonth goes back one month with year rollover at January.
func prevMonth(month, year int) (int, int) {
	if month == 1 {
		return 12, year - 1
	}
	return month - 1, year
}
