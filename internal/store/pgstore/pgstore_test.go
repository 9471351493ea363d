package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/affinidi/webvh-server/internal/store/pgstore"
	"github.com/affinidi/webvh-server/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	url := os.Getenv("WEBVH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WEBVH_TEST_DATABASE_URL not set; skipping postgres-backed store test")
	}
	s, err := pgstore.Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	storetest.RunConformance(t, s)
}
