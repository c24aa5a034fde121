package reconcile

import (
	"context"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
)

const importFinishedAction = "batch_import.finished"

// ImportNotifier is told about each run after it has been persisted.
type ImportNotifier interface {
	ImportFinished(ctx context.Context, run *ImportRun) error
}

// PubSubNotifier publishes runs to the PUBSUB_TOPIC topic.
type PubSubNotifier struct{}

// NewNotifierFromEnv returns nil when PUBSUB_TOPIC is unset.
func NewNotifierFromEnv() ImportNotifier {
	if config.ImportEventTopic() == "" {
		return nil
	}
	return PubSubNotifier{}
}

func (PubSubNotifier) ImportFinished(ctx context.Context, run *ImportRun) error {
	_, err := config.PublishImportEvent(ctx, NewImportEventMessage(run))
	return err
}

func NewImportEventMessage(run *ImportRun) config.ImportEventMessage {
	return config.ImportEventMessage{
		ImportRunId:   run.ID,
		SourceFile:    run.SourceFile,
		CreatedBy:     run.CreatedBy,
		CorrelationId: run.CorrelationId,
		TotalRows:     run.TotalRows,
		Imported:      run.Imported,
		Failed:        run.Failed,
		AutoLinked:    run.AutoLinked,
		PendingLink:   run.PendingLink,
		FinishedAt:    run.FinishedAt,
		Action:        importFinishedAction,
	}
}
