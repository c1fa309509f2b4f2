package testutil

import "testing"

func TestExternalMongoURI(t *testing.T) {
	t.Setenv(MongoURIEnv, "  mongodb://localhost:27017/?replicaSet=rs0 ")
	if got := ExternalMongoURI(); got != "mongodb://localhost:27017/?replicaSet=rs0" {
		t.Fatalf("unexpected uri %q", got)
	}
	t.Setenv(MongoURIEnv, "")
	if got := ExternalMongoURI(); got != "" {
		t.Fatalf("expected empty uri, got %q", got)
	}
}
