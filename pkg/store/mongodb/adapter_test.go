package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimburion/docsync/pkg/observability/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{}, logger.Nop()); err == nil {
		t.Fatal("expected error for empty URL and database")
	}
	if _, err := NewAdapter(Config{URL: "mongodb://localhost:27017"}, logger.Nop()); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(Config{})
	if cfg.ConnectTimeout != 5*time.Second || cfg.OperationTimeout != 5*time.Second || cfg.TransactionTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	cfg = withDefaults(Config{TransactionTimeout: time.Second})
	if cfg.TransactionTimeout != time.Second {
		t.Fatalf("explicit transaction timeout overwritten: %v", cfg.TransactionTimeout)
	}
}

func TestPing_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWithTransaction_WhenClosed(t *testing.T) {
	a := &Adapter{closed: true}
	called := false
	err := a.WithTransaction(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrClosed) || called {
		t.Fatalf("expected ErrClosed without running fn, got %v called=%v", err, called)
	}
}

func TestClose_IdempotentWhenAlreadyClosed(t *testing.T) {
	a := &Adapter{closed: true}
	if err := a.Close(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestOperationContext_UsesAdapterTimeoutWhenNoDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}

	ctx, cancel := a.OperationContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected deadline from operation timeout")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("unexpected remaining timeout: %v", remaining)
	}
}

func TestOperationContext_PreservesCallerDeadline(t *testing.T) {
	a := &Adapter{timeout: 2 * time.Second}
	parentCtx, parentCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer parentCancel()

	ctx, cancel := a.OperationContext(parentCtx)
	defer cancel()

	parentDeadline, _ := parentCtx.Deadline()
	gotDeadline, _ := ctx.Deadline()
	if !gotDeadline.Equal(parentDeadline) {
		t.Fatalf("expected caller deadline to be preserved, got %v want %v", gotDeadline, parentDeadline)
	}
}

func TestTransactionOptions(t *testing.T) {
	opts := TransactionOptions()
	if opts.ReadConcern == nil || opts.ReadConcern.Level != "local" {
		t.Fatalf("expected local read concern, got %+v", opts.ReadConcern)
	}
	if opts.WriteConcern == nil {
		t.Fatal("expected majority write concern")
	}
	if opts.ReadPreference == nil {
		t.Fatal("expected primary read preference")
	}
}

func TestIndexModels(t *testing.T) {
	models := IndexModels([]string{"collections", "discounts"})
	if len(models) != 5 {
		t.Fatalf("expected 5 index models, got %d", len(models))
	}
	last, ok := models[4].Keys.(bson.D)
	if !ok || last[0].Key != "_relations.discounts.ids" {
		t.Fatalf("unexpected relation index keys: %#v", models[4].Keys)
	}
	if *models[0].Options.Unique != true || *models[0].Options.Sparse != true {
		t.Fatal("handle index must be unique and sparse")
	}
}

type recordingSession struct {
	starts, aborts, commits int
	commitErr               error
}

func (s *recordingSession) StartTransaction(...*options.TransactionOptions) error {
	s.starts++
	return nil
}

func (s *recordingSession) AbortTransaction(context.Context) error {
	s.aborts++
	return nil
}

func (s *recordingSession) CommitTransaction(context.Context) error {
	s.commits++
	return s.commitErr
}

func bindNothing(ctx context.Context) context.Context { return ctx }

func TestRunTransaction_TransientErrorIsNotRetried(t *testing.T) {
	sess := &recordingSession{}
	conflict := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	calls := 0
	err := runTransaction(context.Background(), sess, bindNothing, func(context.Context) error {
		calls++
		return conflict
	}, logger.Nop())

	var cmdErr mongo.CommandError
	if !errors.As(err, &cmdErr) || !cmdErr.HasErrorLabel("TransientTransactionError") {
		t.Fatalf("expected the write conflict back, got %v", err)
	}
	if calls != 1 || sess.starts != 1 || sess.aborts != 1 || sess.commits != 0 {
		t.Fatalf("calls=%d starts=%d aborts=%d commits=%d", calls, sess.starts, sess.aborts, sess.commits)
	}
}

func TestRunTransaction_UnknownCommitResultIsNotRetried(t *testing.T) {
	sess := &recordingSession{commitErr: mongo.CommandError{Code: 50, Labels: []string{"UnknownTransactionCommitResult"}}}
	calls := 0
	err := runTransaction(context.Background(), sess, bindNothing, func(context.Context) error {
		calls++
		return nil
	}, nil)
	if err == nil {
		t.Fatal("expected commit error")
	}
	if calls != 1 || sess.commits != 1 || sess.aborts != 0 {
		t.Fatalf("calls=%d commits=%d aborts=%d", calls, sess.commits, sess.aborts)
	}
}

func TestRunTransaction_Commits(t *testing.T) {
	sess := &recordingSession{}
	bound := false
	err := runTransaction(context.Background(), sess, func(ctx context.Context) context.Context {
		bound = true
		return ctx
	}, func(context.Context) error { return nil }, logger.Nop())
	if err != nil || !bound || sess.commits != 1 {
		t.Fatalf("err=%v bound=%v commits=%d", err, bound, sess.commits)
	}
}
