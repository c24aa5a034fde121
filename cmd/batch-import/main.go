package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
)

func main() {
	file := flag.String("file", "", "Batch export to import (.csv or .xlsx).")
	user := flag.String("user", "BatchImportCLI", "Recorded as created_by on the import run.")
	archive := flag.Bool("archive", false, "Archive the source file to GCS_BUCKET before importing.")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(2)
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	// Without REDIS_ADDRESS the import runs unlocked.
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
	}
	models.MigrateTable()

	fileName := filepath.Base(*file)
	ctx := utils.SetUsernameInContext(context.Background(), *user)
	ctx = utils.SetSourceFileInContext(ctx, fileName)

	req := reconcile.ImportRequest{FileName: fileName, Content: data}
	if *archive {
		archiver := utils.NewGCSArchiverFromEnv()
		if archiver == nil {
			fmt.Fprintln(os.Stderr, "-archive needs GCS_BUCKET")
			os.Exit(2)
		}
		key, err := archiver.Archive(ctx, fileName, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "archive failed: %v\n", err)
			os.Exit(1)
		}
		req.ArchiveKey = key
	}

	coordinator := reconcile.NewCoordinator(models.NewBatchStore(db), config.GetImportSettings(), config.GetLogger())
	coordinator.SetNotifier(reconcile.NewNotifierFromEnv())
	run, err := coordinator.Import(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		fmt.Fprintf(os.Stderr, "encode summary: %v\n", err)
		os.Exit(1)
	}
	if run.Failed > 0 {
		os.Exit(3)
	}
}
