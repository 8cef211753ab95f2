package services

import (
	"math"
	"time"
)

const weekDuration = 7 * 24 * time.Hour

// SeasonCalendar делит сезон на недели по 7 дней начиная с Start.
type SeasonCalendar struct {
	Start time.Time
}

func NewSeasonCalendar(start time.Time) SeasonCalendar {
	return SeasonCalendar{Start: start.UTC()}
}

func (c SeasonCalendar) Year() int {
	return c.Start.Year()
}

// WeekNumber: (t - start) // 7 дней + 1. Для дат до начала сезона результат < 1.
func (c SeasonCalendar) WeekNumber(t time.Time) int {
	diff := t.UTC().Sub(c.Start)
	return int(math.Floor(float64(diff)/float64(weekDuration))) + 1
}

// WeekBounds возвращает начало недели и ее конец (start + 7 дней - 1с).
func (c SeasonCalendar) WeekBounds(weekNumber int) (time.Time, time.Time) {
	start := c.Start.Add(time.Duration(weekNumber-1) * weekDuration)
	end := start.Add(weekDuration - time.Second)
	return start, end
}
