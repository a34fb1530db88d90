package screen

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// appName resolves the executable name of the window's owning process.
func appName(ctx context.Context, pid int32) string {
	if pid <= 0 {
		return ""
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
