package scheduling

import "strings"

const (
	MinSlotMinutes = 15
	MaxSlotMinutes = 120
)

// GenerateRequest is a doctor's request to open slots on one day.
type GenerateRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  int    `json:"duration"`
}

// ValidationError lists every rule a GenerateRequest broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// Plan is the validated outcome of a GenerateRequest.
type Plan struct {
	Date   Date
	Ranges []TimeRange
}

// Generate validates req against today and cuts the window into slots.
// All failed checks are reported together.
func Generate(req GenerateRequest, today Date) (*Plan, error) {
	var problems []string

	date, err := ParseDate(req.Date)
	if err != nil || date.Before(today) {
		problems = append(problems, "Please select a valid future date")
	}

	var start, end TimeOfDay
	var startErr, endErr error
	if strings.TrimSpace(req.StartTime) == "" || strings.TrimSpace(req.EndTime) == "" {
		problems = append(problems, "Please select start and end times")
	} else {
		start, startErr = ParseTimeOfDay(req.StartTime)
		end, endErr = ParseTimeOfDay(req.EndTime)
		if startErr != nil || endErr != nil {
			problems = append(problems, "Please select start and end times")
		} else if start >= end {
			problems = append(problems, "End time must be after start time")
		}
	}

	if req.Duration < MinSlotMinutes || req.Duration > MaxSlotMinutes {
		problems = append(problems, "Duration must be between 15 and 120 minutes")
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &Plan{Date: date, Ranges: Slots(start, end, req.Duration)}, nil
}

// Slots cuts [start, end) into back-to-back intervals of duration minutes.
// A trailing remainder shorter than duration is dropped.
func Slots(start, end TimeOfDay, duration int) []TimeRange {
	if duration <= 0 || start >= end {
		return nil
	}
	step := TimeOfDay(duration)
	out := make([]TimeRange, 0, int(end-start)/duration)
	for cur := start; cur+step <= end; cur += step {
		out = append(out, TimeRange{Start: cur, End: cur + step})
	}
	return out
}
