package firebase

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// App holds the initialized Firebase app and the clients this service uses
type App struct {
	FirebaseApp     *firebase.App
	AuthClient      *auth.Client
	MessagingClient *messaging.Client
	FirestoreClient *firestore.Client
}

// InitFirebase initializes the Firebase application with its auth and messaging clients.
// An empty credentialsPath falls back to application default credentials. The Firestore
// client is only opened when withFirestore is set.
func InitFirebase(ctx context.Context, credentialsPath string, withFirestore bool) (*App, error) {
	var opts []option.ClientOption
	if credentialsPath != "" {
		// Check if the credentials file exists
		if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}

	firebaseApp, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase auth client: %w", err)
	}

	messagingClient, err := firebaseApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firebase messaging client: %w", err)
	}

	app := &App{FirebaseApp: firebaseApp, AuthClient: authClient, MessagingClient: messagingClient}

	if withFirestore {
		app.FirestoreClient, err = firebaseApp.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("error getting firestore client: %w", err)
		}
	}

	logrus.WithField("firestore", withFirestore).Info("Firebase app initialized")
	return app, nil
}

// Close releases the Firestore client if one was opened
func (a *App) Close() {
	if a.FirestoreClient == nil {
		return
	}
	if err := a.FirestoreClient.Close(); err != nil {
		logrus.WithError(err).Warn("Error closing Firestore client")
	}
}
