package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/sirupsen/logrus"
)

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

// LogSlowReport warns when building a report took longer than REPORT_SLOW_MS.
func LogSlowReport(ctx context.Context, name string, started time.Time, rows int) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"rows":           rows,
		"correlation_id": cid,
	}).Warn("slow_report")
}
