package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// DayLayout is the key form of a calendar day.
const DayLayout = "2006-01-02"

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DayKey formats a calendar day for use in storage keys.
func DayKey(day time.Time) string {
	return day.Format(DayLayout)
}

// DayScore maps a calendar day to a sortable integer (YYYYMMDD).
func DayScore(day time.Time) int64 {
	y, m, d := day.Date()
	return int64(y)*10000 + int64(m)*100 + int64(d)
}

// EncodeRecord validates and serializes a record.
func EncodeRecord(r *DailyRecord) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

// DecodeRecord deserializes a record and normalizes legacy fields.
func DecodeRecord(data []byte) (*DailyRecord, error) {
	var r DailyRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	r.Normalize()
	return &r, nil
}

// IsDomainError reports whether err is a storage outcome rather than a backend failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoOpenSession) ||
		errors.Is(err, ErrOutOfOrder) ||
		errors.Is(err, ErrInvalidRecord)
}

// Unavailable wraps a backend failure so callers can match ErrUnavailable.
// Domain errors pass through unchanged.
func Unavailable(op string, err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// SortByDayDesc orders records newest day first.
func SortByDayDesc(records []DailyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return DayScore(records[i].Day) > DayScore(records[j].Day)
	})
}

// SortByDayAsc orders records oldest day first, then by user.
func SortByDayAsc(records []DailyRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := DayScore(records[i].Day), DayScore(records[j].Day)
		if di != dj {
			return di < dj
		}
		return records[i].UserID < records[j].UserID
	})
}
