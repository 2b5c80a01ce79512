package firebaseapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"

	"travelPlannerAPI/internal/config"
)

// App wraps the Firebase app the planner uses for the realtime database
// and for destination images in Cloud Storage.
type App struct {
	app *firebase.App
}

// credentials prefers base64 encoded service account JSON from the
// environment and falls back to a local key file.
func credentials(encoded, localFilePath string) (option.ClientOption, error) {
	if encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials from FIREBASE_SERVICE_ACCOUNT_JSON: %w", err)
		}
		log.Println("Firebase: Initializing from FIREBASE_SERVICE_ACCOUNT_JSON environment variable.")
		return option.WithCredentialsJSON(decoded), nil
	}

	if _, err := os.Stat(localFilePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("local firebase file not found: %s, and FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set", localFilePath)
	}
	log.Printf("Firebase: Initializing from local file: %s.", localFilePath)
	return option.WithCredentialsFile(localFilePath), nil
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	opt, err := credentials(cfg.FirebaseServiceAccountJSON, cfg.FirebaseCredentialsFile)
	if err != nil {
		return nil, err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		DatabaseURL:   cfg.FirebaseDatabaseURL,
		StorageBucket: cfg.FirebaseStorageBucket,
	}, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	return &App{app: app}, nil
}

func (a *App) Database(ctx context.Context) (*db.Client, error) {
	client, err := a.app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}
	return client, nil
}

// DefaultBucket returns the configured storage bucket.
func (a *App) DefaultBucket(ctx context.Context) (*gcs.BucketHandle, error) {
	client, err := a.app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting storage client: %w", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("error getting storage bucket: %w", err)
	}
	return bucket, nil
}
