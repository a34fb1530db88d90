package screen

import (
	"bufio"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
)

// parseWmctrl parses `wmctrl -lpG` output:
//
//	0x03a00003  0 4242   10   20 1920 1080 host Age of Empires IV
//
// Sticky windows report desktop -1 and are kept.
func parseWmctrl(out string) ([]Window, error) {
	var windows []Window
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, apperrors.Newf(apperrors.CaptureFailed, "malformed wmctrl line %q", line)
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "bad window id %q", fields[0])
		}
		nums := make([]int, 5)
		for i, f := range fields[2:7] {
			if nums[i], err = strconv.Atoi(f); err != nil {
				return nil, apperrors.Wrapf(err, apperrors.CaptureFailed, "bad field %q in %q", f, line)
			}
		}
		windows = append(windows, Window{
			ID:     id,
			PID:    int32(nums[0]),
			X:      nums[1],
			Y:      nums[2],
			Width:  nums[3],
			Height: nums[4],
			Title:  titleAfter(line, fields[:8]),
		})
	}
	return windows, sc.Err()
}

// titleAfter returns the remainder of line after the leading fields, preserving inner spacing.
func titleAfter(line string, lead []string) string {
	rest := line
	for _, f := range lead {
		i := strings.Index(rest, f)
		rest = rest[i+len(f):]
	}
	return strings.TrimSpace(rest)
}
