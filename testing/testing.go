// Package testing has helpers shared by tests that need a Firestore backend.
package testing

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
)

// EmulatorHostEnv names the variable pointing the Firestore client at a local emulator.
const EmulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// NewFirestoreTestClient creates a new client for testing. It requires a local Firestore emulator
// to be running on the user's machine; the test is skipped when none is configured.
func NewFirestoreTestClient(ctx context.Context, t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv(EmulatorHostEnv) == "" {
		t.Skipf("%s not set; skipping Firestore test", EmulatorHostEnv)
	}
	client, err := firestore.NewClient(ctx, "test")
	if err != nil {
		t.Fatalf("firestore.NewClient err: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
