package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// NotificationMessage is the wire shape published for queued user notifications.
type NotificationMessage struct {
	ID            int    `json:"id"`
	BusinessId    string `json:"business_id"`
	UserId        int    `json:"user_id"`
	Payload       []byte `json:"payload"`
	CorrelationId string `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex

	notifyTopic   *pubsub.Topic
	notifyTopicMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials (Cloud Run service account or GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}

	pubsubClientMu.Lock()
	if pubsubClient == nil {
		pubsubClient = c
	} else {
		// Another goroutine won the race; close ours.
		_ = c.Close()
	}
	c2 := pubsubClient
	pubsubClientMu.Unlock()

	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return c2, nil
}

// getNotifyTopic resolves (and creates, on first use) the notification topic.
func getNotifyTopic(ctx context.Context) (*pubsub.Topic, error) {
	notifyTopicMu.Lock()
	defer notifyTopicMu.Unlock()
	if notifyTopic != nil {
		return notifyTopic, nil
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	topicName := os.Getenv("PUBSUB_NOTIFY_TOPIC")
	if topicName == "" {
		return nil, errors.New("PUBSUB_NOTIFY_TOPIC is required")
	}
	t, err := CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return nil, err
	}
	notifyTopic = t
	return t, nil
}

// PublishNotification publishes one queued notification and returns the
// Pub/Sub server-assigned message ID.
func PublishNotification(ctx context.Context, msg NotificationMessage) (string, error) {
	t, err := getNotifyTopic(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	pubCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result := t.Publish(pubCtx, &pubsub.Message{
		Data: msgJSON,
	})

	id, err := result.Get(pubCtx)
	return id, err
}

func CreateTopicIfNotExists(c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	ctx := context.Background()
	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	return c.CreateTopic(ctx, topic)
}
