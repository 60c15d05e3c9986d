package http

import (
	"time"

	xutil "GoldPull/pkg/util"
)

// ParseTimeDefault parses RFC3339 or unix seconds, or returns def.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// ParseIntDefault parses s or returns def.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }
