package attendance

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// WorkDayLayout は勤務日キーの書式です。
const WorkDayLayout = "2006-01-02"

// WorkDay は基準タイムゾーンで正規化した YYYY-MM-DD の勤務日キーです。
type WorkDay string

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// CanonicalWorkDay は日付らしき値を loc 上の勤務日キーへ正規化します。
// 受け付けるのは WorkDay、日付文字列、日時文字列、epoch ミリ秒、time.Time です。
// 正規化済みのキーを再度渡すとそのまま返ります。
func CanonicalWorkDay(value any, loc *time.Location) (WorkDay, error) {
	loc = locationOrUTC(loc)

	switch v := value.(type) {
	case WorkDay:
		return CanonicalWorkDay(string(v), loc)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", ErrInvalidWorkDay
		}
		if d, err := time.ParseInLocation(WorkDayLayout, trimmed, loc); err == nil {
			return WorkDay(d.Format(WorkDayLayout)), nil
		}
		if ms, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return WorkDay(time.UnixMilli(ms).In(loc).Format(WorkDayLayout)), nil
		}
		t, err := parseInstant(trimmed, loc)
		if err != nil {
			return "", ErrInvalidWorkDay
		}
		return WorkDay(t.In(loc).Format(WorkDayLayout)), nil
	case time.Time:
		if v.IsZero() {
			return "", ErrInvalidWorkDay
		}
		return WorkDay(v.In(loc).Format(WorkDayLayout)), nil
	case nil:
		return "", ErrInvalidWorkDay
	default:
		ms, err := ToEpochMillis(value, loc)
		if err != nil {
			return "", ErrInvalidWorkDay
		}
		return WorkDay(time.UnixMilli(ms).In(loc).Format(WorkDayLayout)), nil
	}
}

// ToEpochMillis は数値の epoch ミリ秒または日時文字列を epoch ミリ秒へ変換します。
// タイムゾーンを含まない文字列は loc で解釈します。
func ToEpochMillis(value any, loc *time.Location) (int64, error) {
	loc = locationOrUTC(loc)

	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return floatMillis(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, ErrInvalidTimeFormat
		}
		return floatMillis(f)
	case time.Time:
		if v.IsZero() {
			return 0, ErrInvalidTimeFormat
		}
		return v.UnixMilli(), nil
	case WorkDay:
		return ToEpochMillis(string(v), loc)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, ErrInvalidTimeFormat
		}
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n, nil
		}
		if d, err := time.ParseInLocation(WorkDayLayout, trimmed, loc); err == nil {
			return d.UnixMilli(), nil
		}
		t, err := parseInstant(trimmed, loc)
		if err != nil {
			return 0, ErrInvalidTimeFormat
		}
		return t.UnixMilli(), nil
	default:
		return 0, ErrInvalidTimeFormat
	}
}

// Start は loc における勤務日の 0 時を返します。
func (d WorkDay) Start(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(WorkDayLayout, string(d), locationOrUTC(loc))
	if err != nil {
		return time.Time{}, ErrInvalidWorkDay
	}
	return t, nil
}

// Cutoff は勤務日の 0 時からの壁時計オフセット (HH:MM:SS) を loc の時刻として返します。
// 夏時間の切り替え日でも結果は同じ勤務日に収まります。
func (d WorkDay) Cutoff(offset time.Duration, loc *time.Location) (time.Time, error) {
	start, err := d.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	h := int(offset / time.Hour)
	m := int(offset % time.Hour / time.Minute)
	sec := int(offset % time.Minute / time.Second)
	return time.Date(start.Year(), start.Month(), start.Day(), h, m, sec, 0, start.Location()), nil
}

// Weekday は勤務日の曜日名を返します。
func (d WorkDay) Weekday() string {
	t, err := time.Parse(WorkDayLayout, string(d))
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

func (d WorkDay) String() string {
	return string(d)
}

// PreviousWorkDay は t を loc で見たときの前日の勤務日キーを返します。
// 0 時に起動する自動ログアウトは前日分を対象にします。
func PreviousWorkDay(t time.Time, loc *time.Location) WorkDay {
	local := t.In(locationOrUTC(loc))
	y, m, d := local.Date()
	return WorkDay(time.Date(y, m, d-1, 0, 0, 0, 0, local.Location()).Format(WorkDayLayout))
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func floatMillis(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, ErrInvalidTimeFormat
	}
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalidTimeFormat
	}
	return int64(f), nil
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
