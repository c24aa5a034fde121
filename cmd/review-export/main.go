package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/models/reports"
)

func main() {
	from := flag.String("from", "", "Start date (YYYY-MM-DD). Required.")
	to := flag.String("to", "", "End date (YYYY-MM-DD). Defaults to -from.")
	out := flag.String("out", "", "Output .xlsx path. Defaults to batch-review_<from>_<to>.xlsx.")
	flag.Parse()

	loc := config.GetImportSettings().Location
	start, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(*from), loc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-from must be YYYY-MM-DD")
		os.Exit(2)
	}
	end := start
	if strings.TrimSpace(*to) != "" {
		end, err = time.ParseInLocation("2006-01-02", strings.TrimSpace(*to), loc)
		if err != nil || end.Before(start) {
			fmt.Fprintln(os.Stderr, "-to must be YYYY-MM-DD and not before -from")
			os.Exit(2)
		}
	}
	filename := strings.TrimSpace(*out)
	if filename == "" {
		filename = fmt.Sprintf("batch-review_%s_%s.xlsx", start.Format("20060102"), end.Format("20060102"))
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx := context.Background()
	started := time.Now()
	batches, err := models.NewBatchStore(db).GetReviewBatches(ctx, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load review batches: %v\n", err)
		os.Exit(1)
	}
	if err := reports.SaveReviewWorkbook(filename, batches); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", filename, err)
		os.Exit(1)
	}
	reports.LogSlowReport(ctx, "batch_review", started, len(batches))
	fmt.Printf("wrote %d batches to %s\n", len(batches), filename)
}
