package s3client

import (
	"context"
	"testing"
)

// TestClient returns a client for a fresh bucket on an in-memory gofakes3
// server that is shut down with the test.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()
	mem, err := NewInMemory(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start in-memory s3: %v", err)
	}
	t.Cleanup(func() {
		mem.Close()
	})
	return mem.Client
}
