/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var slowQuerySilent atomic.Bool

// SetSlowQuerySilent mutes every SlowQueryHook in the process.
func SetSlowQuerySilent(b bool) {
	slowQuerySilent.Store(b)
}

// SlowQueryHook reports successful queries slower than a threshold.
type SlowQueryHook struct {
	slowTime time.Duration
	logger   Logger
	colored  bool
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook returns a hook that logs to logger; a nil logger falls
// back to GetLogger.
func NewSlowQueryHook(slowTime time.Duration, logger Logger) *SlowQueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &SlowQueryHook{
		slowTime: slowTime,
		logger:   logger,
		colored:  !color.NoColor,
	}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if slowQuerySilent.Load() || event.Err != nil {
		return
	}

	duration := time.Since(event.StartTime)
	if duration <= h.slowTime {
		return
	}
	h.logger.Warn("Database slow query detected",
		"duration", duration.Round(time.Microsecond),
		"slow_threshold", h.slowTime,
		"operation", event.Operation(),
		"query", h.highlight(event),
	)
}

func (h *SlowQueryHook) highlight(event *bun.QueryEvent) string {
	if !h.colored {
		return event.Query
	}
	return operationColor(event.Operation()).Sprint(event.Query)
}

func operationColor(operation string) *color.Color {
	switch operation {
	case "SELECT":
		return color.New(color.FgGreen)
	case "INSERT":
		return color.New(color.FgBlue)
	case "UPDATE":
		return color.New(color.FgYellow)
	case "DELETE":
		return color.New(color.FgMagenta)
	default:
		return color.New(color.FgRed)
	}
}
