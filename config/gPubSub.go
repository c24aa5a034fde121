package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// ImportEventMessage is published once per finished import run.
type ImportEventMessage struct {
	ImportRunId   string    `json:"import_run_id"`
	SourceFile    string    `json:"source_file"`
	CreatedBy     string    `json:"created_by"`
	CorrelationId string    `json:"correlation_id"`
	TotalRows     int       `json:"total_rows"`
	Imported      int       `json:"imported"`
	Failed        int       `json:"failed"`
	AutoLinked    int       `json:"auto_linked"`
	PendingLink   int       `json:"pending_link"`
	FinishedAt    time.Time `json:"finished_at"`
	Action        string    `json:"action"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

// ImportEventTopic is PUBSUB_TOPIC; empty disables import events.
func ImportEventTopic() string {
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC"))
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run sets this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// getPubSubClient creates the shared client on first use, without retries.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Application Default Credentials (Cloud Run service account or GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PublishImportEvent publishes msg to PUBSUB_TOPIC and returns the server-assigned message ID.
func PublishImportEvent(ctx context.Context, msg ImportEventMessage) (string, error) {
	topicName := ImportEventTopic()
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"action": msg.Action},
	})
	return result.Get(ctx)
}
