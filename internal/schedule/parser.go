// Package schedule implements the two schedule-expression dialects the
// engine accepts — cron (5-field, with a 6-field seconds-precision
// variant accepted for compatibility) and repeat ("5s", "10m", "1h",
// "2d") — and computes fire instants from them.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/robfig/cron/v3"

	"httptrigger/internal/apperr"
	"httptrigger/internal/domain"
)

var repeatPattern = regexp.MustCompile(`(?i)^(\d+)(s|m|h|d)$`)

var unitMillis = map[string]int64{
	"s": 1000,
	"m": 60000,
	"h": 3600000,
	"d": 86400000,
}

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
var secondsParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Parsed is the tagged-union representation computed once at
// registration time and reused on every fire.
type Parsed struct {
	Type     domain.ScheduleType
	Interval time.Duration // repeat only
	Cron     cron.Schedule // cron only
	Raw      string
}

// Parse validates schedule/scheduleType and returns its tagged-union
// form, or an apperr.InvalidSchedule error with a human message.
func Parse(sched string, scheduleType domain.ScheduleType) (Parsed, error) {
	switch scheduleType {
	case domain.ScheduleRepeat:
		return parseRepeat(sched)
	case domain.ScheduleCron:
		return parseCron(sched)
	default:
		return Parsed{}, apperr.New(apperr.InvalidSchedule, fmt.Sprintf("unknown schedule type %q", scheduleType))
	}
}

func parseRepeat(sched string) (Parsed, error) {
	m := repeatPattern.FindStringSubmatch(strings.TrimSpace(sched))
	if m == nil {
		return Parsed{}, apperr.New(apperr.InvalidSchedule, "repeat schedule must match <number><s|m|h|d>, e.g. \"30s\"")
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || value <= 0 {
		return Parsed{}, apperr.New(apperr.InvalidSchedule, "repeat interval must be a positive integer")
	}
	unit := strings.ToLower(m[2])
	if unit == "s" && value < 5 {
		return Parsed{}, apperr.New(apperr.InvalidSchedule, "Minimum interval is 5 seconds")
	}
	if unit == "d" && value > 30 {
		return Parsed{}, apperr.New(apperr.InvalidSchedule, "Maximum interval is 30 days")
	}
	ms := value * unitMillis[unit]
	return Parsed{Type: domain.ScheduleRepeat, Interval: time.Duration(ms) * time.Millisecond, Raw: sched}, nil
}

func parseCron(sched string) (Parsed, error) {
	fields := strings.Fields(strings.TrimSpace(sched))
	var (
		s   cron.Schedule
		err error
	)
	switch len(fields) {
	case 5:
		s, err = standardParser.Parse(sched)
	case 6:
		s, err = secondsParser.Parse(sched)
	default:
		return Parsed{}, apperr.New(apperr.InvalidSchedule, "cron expression must have 5 fields (minute hour dom month dow), or 6 with a leading seconds field")
	}
	if err != nil {
		return Parsed{}, apperr.Wrap(apperr.InvalidSchedule, "invalid cron expression", err)
	}
	return Parsed{Type: domain.ScheduleCron, Cron: s, Raw: sched}, nil
}

// Validate is a pure validity check, discarding the parsed form.
func Validate(sched string, scheduleType domain.ScheduleType) (bool, string) {
	if _, err := Parse(sched, scheduleType); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// NextAfter computes the first fire instant strictly after from.
func NextAfter(sched string, scheduleType domain.ScheduleType, from time.Time) (time.Time, error) {
	p, err := Parse(sched, scheduleType)
	if err != nil {
		return time.Time{}, err
	}
	return p.NextAfter(from), nil
}

func (p Parsed) NextAfter(from time.Time) time.Time {
	if p.Type == domain.ScheduleRepeat {
		return from.Add(p.Interval)
	}
	return p.Cron.Next(from)
}

// Upcoming returns the first count fire instants strictly after now.
func Upcoming(sched string, scheduleType domain.ScheduleType, count int) ([]time.Time, error) {
	p, err := Parse(sched, scheduleType)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, count)
	cursor := time.Now()
	for i := 0; i < count; i++ {
		cursor = p.NextAfter(cursor)
		out = append(out, cursor)
	}
	return out, nil
}

var describeCache *lru.Cache[string, string]

func init() {
	c, err := lru.New[string, string](256)
	if err != nil {
		panic(err) // only fails for a non-positive size, which is a programmer error
	}
	describeCache = c
}

// Describe returns a best-effort human description, memoized per
// (schedule, scheduleType) since the job-list endpoint calls it once
// per row per request.
func Describe(sched string, scheduleType domain.ScheduleType) string {
	key := string(scheduleType) + "\x00" + sched
	if v, ok := describeCache.Get(key); ok {
		return v
	}
	v := describe(sched, scheduleType)
	describeCache.Add(key, v)
	return v
}

func describe(sched string, scheduleType domain.ScheduleType) string {
	if scheduleType == domain.ScheduleRepeat {
		m := repeatPattern.FindStringSubmatch(strings.TrimSpace(sched))
		if m == nil {
			return "repeat: " + sched
		}
		value := m[1]
		unitWord := map[string]string{"s": "second", "m": "minute", "h": "hour", "d": "day"}[strings.ToLower(m[2])]
		if value != "1" {
			unitWord += "s"
		}
		return fmt.Sprintf("every %s %s", value, unitWord)
	}

	switch strings.TrimSpace(sched) {
	case "* * * * *":
		return "every minute"
	case "0 * * * *":
		return "every hour"
	case "0 0 * * *":
		return "every day at 00:00"
	case "0 0 * * 0":
		return "every Sunday at 00:00"
	case "0 0 1 * *":
		return "on the 1st of every month at 00:00"
	}
	return "cron: " + sched
}
