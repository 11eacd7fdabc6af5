package timer

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var anchorParser = newAnchorParser()

func newAnchorParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseAnchor accepts either a strict "HHMM" time-of-day anchor or a
// natural-language time expression ("6pm", "midnight", "3:30am") and
// normalizes it to "HHMM" UTC, so a time-of-day anchor need not be
// written in the terse numeric form.
func ParseAnchor(raw string) (string, error) {
	if len(raw) == 4 {
		allDigits := true
		for _, r := range raw {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return raw, nil
		}
	}

	result, err := anchorParser.Parse(raw, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("timer: parsing anchor %q: %w", raw, err)
	}
	if result == nil {
		return "", fmt.Errorf("timer: could not interpret anchor %q", raw)
	}
	t := result.Time.UTC()
	return fmt.Sprintf("%02d%02d", t.Hour(), t.Minute()), nil
}
