package record

import (
	"fmt"
	"time"
)

// WearableSample is one day of consumer-device activity data.
type WearableSample struct {
	Date       time.Time
	Steps      int
	AvgHR      int
	SleepHours float64
}

// ValidateWearable checks that samples cover consecutive calendar days in
// ascending order with no duplicates and no negative counts.
func ValidateWearable(samples []WearableSample) error {
	for i, s := range samples {
		if s.Steps < 0 {
			return fmt.Errorf("%w: wearable sample %s has negative steps", ErrInvariant, s.Date.Format(time.DateOnly))
		}
		if i == 0 {
			continue
		}
		prev := Day(samples[i-1].Date)
		if !Day(s.Date).Equal(prev.AddDate(0, 0, 1)) {
			return fmt.Errorf("%w: wearable sample %d dated %s does not follow %s",
				ErrInvariant, i, s.Date.Format(time.DateOnly), prev.Format(time.DateOnly))
		}
	}
	return nil
}
