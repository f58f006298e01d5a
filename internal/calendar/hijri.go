// Package calendar converts Gregorian dates to the tabular Islamic (Hijri)
// calendar for display next to snapshots and audit entries. The values are
// never used in any balance computation.
package calendar

import (
	"fmt"
	"math"
	"time"
)

const (
	// julianDayUnixEpoch is the Julian day number of 1970-01-01.
	julianDayUnixEpoch = 2440588
	// hijriEpoch is the Julian day number of 1 Muharram 1 AH (civil epoch).
	hijriEpoch = 1948440
)

var arabicMonths = [12]string{
	"محرم",
	"صفر",
	"ربيع الأول",
	"ربيع الآخر",
	"جمادى الأولى",
	"جمادى الآخرة",
	"رجب",
	"شعبان",
	"رمضان",
	"شوال",
	"ذو القعدة",
	"ذو الحجة",
}

var englishMonths = [12]string{
	"Muharram",
	"Safar",
	"Rabi al-Awwal",
	"Rabi al-Thani",
	"Jumada al-Awwal",
	"Jumada al-Thani",
	"Rajab",
	"Shaban",
	"Ramadan",
	"Shawwal",
	"Dhu al-Qadah",
	"Dhu al-Hijjah",
}

type HijriDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// String returns the date as YYYY-MM-DD.
func (h HijriDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", h.Year, h.Month, h.Day)
}

// Arabic returns e.g. "1 رمضان 1445 هـ".
func (h HijriDate) Arabic() string {
	return fmt.Sprintf("%d %s %d هـ", h.Day, arabicMonths[h.Month-1], h.Year)
}

// English returns e.g. "1 Ramadan 1445 AH".
func (h HijriDate) English() string {
	return fmt.Sprintf("%d %s %d AH", h.Day, englishMonths[h.Month-1], h.Year)
}

// ToHijri converts the calendar date of t, taken in t's own location.
func ToHijri(t time.Time) HijriDate {
	jdn := julianDay(t)

	year := int(math.Floor(float64(30*(jdn-hijriEpoch)+10646) / 10631))
	dayOfYear := jdn - (29 + hijriToJulianDay(year, 1, 1))
	month := int(math.Ceil(float64(dayOfYear)/29.5)) + 1
	if month > 12 {
		month = 12
	}
	if month < 1 {
		month = 1
	}
	day := jdn - hijriToJulianDay(year, month, 1) + 1

	return HijriDate{Year: year, Month: month, Day: day}
}

// ToGregorian returns midnight UTC of the Gregorian day matching h.
func ToGregorian(h HijriDate) time.Time {
	jdn := hijriToJulianDay(h.Year, h.Month, h.Day)
	return time.Unix(int64(jdn-julianDayUnixEpoch)*86400, 0).UTC()
}

// FormatArabic is shorthand for ToHijri(t).Arabic().
func FormatArabic(t time.Time) string {
	return ToHijri(t).Arabic()
}

func julianDay(t time.Time) int {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(midnight.Unix()/86400) + julianDayUnixEpoch
}

func hijriToJulianDay(year, month, day int) int {
	// ceil(29.5 * (month-1)) in integer arithmetic
	monthDays := (59*(month-1) + 1) / 2
	return day + monthDays + (year-1)*354 + (3+11*year)/30 + hijriEpoch - 1
}
