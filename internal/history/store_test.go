package history

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// TestRecordAndRetrieveSession spins up a disposable MongoDB container
// per run, replacing the teacher's env-var-dialed real database
// (internal/database/database_test.go) with an isolated instance so this
// test never depends on or pollutes a shared cluster.
func TestRecordAndRetrieveSession(t *testing.T) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := Connect(ctx, uri, "liveclass_test")
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(func() { store.Close(ctx) })

	started := time.Now().Add(-time.Hour)
	ended := time.Now()
	sess := Session{
		StreamKey:             "room1",
		StartedAt:             started,
		EndedAt:               ended,
		RecordingPath:         "recordings/room1_20260101T000000.flv",
		SecondaryCodecEnabled: true,
		EndReason:             "publisher disconnected",
	}
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}

	got, err := store.RecentSessions(ctx, "room1", 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 session, got %d", len(got))
	}
	if got[0].RecordingPath != sess.RecordingPath {
		t.Fatalf("unexpected recording path %q", got[0].RecordingPath)
	}
	if !got[0].SecondaryCodecEnabled {
		t.Fatalf("expected secondary codec enabled to round-trip true")
	}
}

func TestRecentSessionsEmptyForUnknownKey(t *testing.T) {
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	store, err := Connect(ctx, uri, "liveclass_test")
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(func() { store.Close(ctx) })

	got, err := store.RecentSessions(ctx, "nonexistent", 10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no sessions for an unknown stream key, got %d", len(got))
	}
}
