package busboard

import (
	"fmt"
	"strconv"
	"time"
)

// FormattedTime renders a raw HHMMSS departure string as a clock
// time, "17:05" or "5:05 pm" depending on ampm. Hours past 23 wrap
// into the next day. Seconds are never shown. Input that doesn't
// parse is returned as HH:MM untranslated.
func FormattedTime(raw string, ampm bool) string {
	if len(raw) < 4 {
		return raw
	}

	minutes := raw[2:4]

	hour, err := strconv.Atoi(raw[0:2])
	if err != nil {
		return raw[0:2] + ":" + minutes
	}

	for hour >= 24 {
		hour -= 24
	}

	if !ampm {
		return strconv.Itoa(hour) + ":" + minutes
	}

	switch {
	case hour > 12:
		return strconv.Itoa(hour-12) + ":" + minutes + " pm"
	case hour == 12:
		return "12:" + minutes + " pm"
	default:
		return strconv.Itoa(hour) + ":" + minutes + " am"
	}
}

// Countdown phrases how far away a raw HHMMSS departure is from now,
// e.g. "Departs in 20 minutes" or "Departs in 1 hour 0 minutes".
// Seconds are ignored. Departure hours are taken modulo 24, so a
// departure more than a day out reads as less than a day out.
func Countdown(now time.Time, raw string) string {
	if len(raw) < 4 {
		return ""
	}

	depHour, err := strconv.Atoi(raw[0:2])
	if err != nil {
		return ""
	}
	depMinute, err := strconv.Atoi(raw[2:4])
	if err != nil {
		return ""
	}

	hourdiff := depHour - now.Hour()
	for hourdiff >= 24 {
		hourdiff -= 24
	}
	if hourdiff < 0 {
		hourdiff += 24
	}

	minutesdiff := depMinute - now.Minute()

	if hourdiff == 0 {
		if minutesdiff < 0 {
			minutesdiff = 0
		}
		return "Departs in " + countMinutes(minutesdiff)
	}

	if minutesdiff <= 0 {
		// The minute hand has already passed the departure's
		// minute, so the remaining time is under hourdiff full
		// hours.
		total := hourdiff*60 + minutesdiff
		hours := total / 60
		if hours == 0 {
			return "Departs in " + countMinutes(total)
		}
		return fmt.Sprintf("Departs in %s %d minutes", countHours(hours), total%60)
	}

	if minutesdiff == 1 {
		return fmt.Sprintf("Departs in %s and 1 minute", countHours(hourdiff))
	}

	return fmt.Sprintf("Departs in %s %d minutes", countHours(hourdiff), minutesdiff)
}

func countMinutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return strconv.Itoa(n) + " minutes"
}

func countHours(n int) string {
	if n == 1 {
		return "1 hour"
	}
	return strconv.Itoa(n) + " hours"
}
