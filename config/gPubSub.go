package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// NotificationMessage is the payload published on NOTIFICATION_TOPIC.
// The notification service owns delivery (email, push); this backend only publishes.
type NotificationMessage struct {
	ID               int       `json:"id"`
	CompanyId        string    `json:"company_id"`
	Kind             string    `json:"kind"`
	SubmissionId     int       `json:"submission_id"`
	SubmissionNumber string    `json:"submission_number"`
	RecipientRoles   []string  `json:"recipient_roles"`
	RecipientUserId  int       `json:"recipient_user_id"`
	Message          string    `json:"message"`
	CorrelationId    string    `json:"correlation_id"`
	CreatedAt        time.Time `json:"created_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// GetPubSubClient returns a Pub/Sub client, initializing it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
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
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("init pubsub client (project_id=%s): %w", projectID, err)
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PublishNotificationWithResult publishes and returns the Pub/Sub server-assigned message ID.
func PublishNotificationWithResult(ctx context.Context, msg NotificationMessage) (string, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	topicName := os.Getenv("NOTIFICATION_TOPIC")
	if topicName == "" {
		return "", errors.New("NOTIFICATION_TOPIC is required")
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"kind":       msg.Kind,
			"company_id": msg.CompanyId,
		},
	})
	return result.Get(ctx)
}
