// Package psx provides PlayStation-specific CD-ROM functionality.
// This file contains the ISO 9660 long- and short-format date codecs,
// including the Y2K anomaly some PSX mastering tools emitted.
package psx

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// LTime is the 17-byte long-format date of a volume descriptor. The digit
// fields are kept as ASCII so that anomalous values such as a "0000" year
// survive a round trip verbatim.
type LTime struct {
	Year       string // 4 digits
	Month      string // 2 digits
	Day        string // 2 digits
	Hour       string // 2 digits
	Minute     string // 2 digits
	Second     string // 2 digits
	Hundredths string // 2 digits
	GmtOff     int    // 15-minute units, signed
}

// ZeroLTime returns the all-zero long-format date used for unset fields.
func ZeroLTime() LTime {
	return LTime{
		Year:       "0000",
		Month:      "00",
		Day:        "00",
		Hour:       "00",
		Minute:     "00",
		Second:     "00",
		Hundredths: "00",
	}
}

// Encode serializes the date into its on-disc 17-byte form.
func (t LTime) Encode() [17]byte {
	var out [17]byte
	copy(out[0:4], t.Year)
	copy(out[4:6], t.Month)
	copy(out[6:8], t.Day)
	copy(out[8:10], t.Hour)
	copy(out[10:12], t.Minute)
	copy(out[12:14], t.Second)
	copy(out[14:16], t.Hundredths)
	out[16] = byte(int8(t.GmtOff))
	return out
}

// ParseLTime decodes a 17-byte long-format date read from a volume
// descriptor, preserving the digit bytes verbatim.
func ParseLTime(data []byte) LTime {
	return LTime{
		Year:       string(data[0:4]),
		Month:      string(data[4:6]),
		Day:        string(data[6:8]),
		Hour:       string(data[8:10]),
		Minute:     string(data[10:12]),
		Second:     string(data[12:14]),
		Hundredths: string(data[14:16]),
		GmtOff:     int(int8(data[16])),
	}
}

// CatalogString formats the date the way the catalog stores it:
// "YYYY-MM-DD hh:mm:ss.ff OFFSET".
func (t LTime) CatalogString() string {
	return fmt.Sprintf("%s-%s-%s %s:%s:%s.%s %d",
		t.Year, t.Month, t.Day, t.Hour, t.Minute, t.Second, t.Hundredths, t.GmtOff)
}

var ltimeSpec = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})\.(\d{2})\s+(-?\d+)$`)

// ParseLTimeSpec parses a catalog date specification back into an LTime.
func ParseLTimeSpec(s string) (LTime, error) {
	m := ltimeSpec.FindStringSubmatch(s)
	if m == nil {
		return LTime{}, fmt.Errorf("'%s' is not a valid date/time specification", s)
	}
	gmtOff, err := strconv.Atoi(m[8])
	if err != nil {
		return LTime{}, fmt.Errorf("'%s' is not a valid GMT offset specification", m[8])
	}
	return LTime{
		Year:       m[1],
		Month:      m[2],
		Day:        m[3],
		Hour:       m[4],
		Minute:     m[5],
		Second:     m[6],
		Hundredths: m[7],
		GmtOff:     gmtOff,
	}, nil
}

// RecordTime is the decoded 7-byte recording time of a directory record.
// Year holds the raw year-since-1900 field and may be negative for
// Y2K-bugged entries.
type RecordTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	GmtOff int // 15-minute units, signed
}

// Encode serializes the recording time into its on-disc 7-byte form.
func (t RecordTime) Encode() [7]byte {
	return [7]byte{
		byte(int8(t.Year)),
		byte(t.Month),
		byte(t.Day),
		byte(t.Hour),
		byte(t.Minute),
		byte(t.Second),
		byte(int8(t.GmtOff)),
	}
}

// ParseRecordTime decodes the 7-byte recording time of a directory record.
func ParseRecordTime(data []byte) RecordTime {
	return RecordTime{
		Year:   int(int8(data[0])),
		Month:  int(data[1]),
		Day:    int(data[2]),
		Hour:   int(data[3]),
		Minute: int(data[4]),
		Second: int(data[5]),
		GmtOff: int(int8(data[6])),
	}
}

var digitDate = regexp.MustCompile(`^\d{14}$`)

// DTimeFromDigits builds a RecordTime from a 14-digit YYYYMMDDhhmmss
// string. The catalog stores wall time; the record stores the time minus
// the GMT offset (timezone in 15-minute units), the inverse of the
// adjustment applied when ripping.
//
// Years before 1900 come from Y2K-bugged mastering and encode as
// year%100 - 100; y2kBug additionally subtracts 100 from a normal year so
// the rebuilt record reproduces the anomalous byte of the original disc.
func DTimeFromDigits(digits string, timezone int, y2kBug bool) (RecordTime, error) {
	if !digitDate.MatchString(digits) {
		return RecordTime{}, fmt.Errorf("invalid date '%s'", digits)
	}

	year, _ := strconv.Atoi(digits[0:4])
	month, _ := strconv.Atoi(digits[4:6])
	day, _ := strconv.Atoi(digits[6:8])
	hour, _ := strconv.Atoi(digits[8:10])
	minute, _ := strconv.Atoi(digits[10:12])
	second, _ := strconv.Atoi(digits[12:14])

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	t = t.Add(-time.Duration(timezone) * 15 * time.Minute)

	var y int
	if year >= 1900 {
		y = t.Year() - 1900
		if y2kBug {
			y -= 100
		}
	} else {
		y = t.Year()%100 - 100
	}

	return RecordTime{
		Year:   y,
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
		GmtOff: timezone,
	}, nil
}

// DigitsFromRecordTime is the ripper-side inverse of DTimeFromDigits: it
// converts the raw record time plus its GMT offset back to the 14-digit
// wall time stored in the catalog. Bugged years (raw year byte below 70)
// gain a century so the digits stay in 20xx; fixDates keeps that
// correction silent, otherwise the caller records a Y2K flag.
func DigitsFromRecordTime(rt RecordTime) string {
	year := rt.Year + 1900
	if rt.Year < 70 {
		year += 100
	}
	t := time.Date(year, time.Month(rt.Month), rt.Day, rt.Hour, rt.Minute, rt.Second, 0, time.UTC)
	t = t.Add(time.Duration(rt.GmtOff) * 15 * time.Minute)
	return t.Format("20060102150405")
}
