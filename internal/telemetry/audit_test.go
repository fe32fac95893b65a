package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewAuditLogger(zap.New(core)), logs
}

func TestDeviceRegisteredLogsInfoWithFields(t *testing.T) {
	audit, logs := newObservedLogger()
	audit.DeviceRegistered("dev-1")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != string(EventDeviceRegistered) {
		t.Fatalf("expected message %s, got %s", EventDeviceRegistered, entries[0].Message)
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["device_id"]; got != "dev-1" {
		t.Fatalf("expected device_id=dev-1, got %v", got)
	}
}

func TestSessionCompletedLogsWarnOnFailure(t *testing.T) {
	audit, logs := newObservedLogger()
	audit.SessionCompleted("s1", false, 42)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for a failed session, got %s", entries[0].Level)
	}
}

func TestSessionCompletedLogsInfoOnSuccess(t *testing.T) {
	audit, logs := newObservedLogger()
	audit.SessionCompleted("s1", true, 10)

	entries := logs.All()
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for a successful session, got %s", entries[0].Level)
	}
}

func TestWithAccountAndSessionScopeFieldsAttach(t *testing.T) {
	audit, logs := newObservedLogger()
	scoped := audit.WithAccount("acct-1").WithSession("sess-1")
	scoped.ConsensusTimeout("round-1")

	entries := logs.All()
	ctx := entries[0].ContextMap()
	if ctx["account_id"] != "acct-1" || ctx["session_id"] != "sess-1" {
		t.Fatalf("expected account/session scope fields, got %v", ctx)
	}
}

func TestInvalidationFailedLogsWarnWithError(t *testing.T) {
	audit, logs := newObservedLogger()
	audit.InvalidationFailed("sig-1", "device", errors.New("boom"))

	entries := logs.All()
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["predicate"]; got != "device" {
		t.Fatalf("expected predicate=device, got %v", got)
	}
}

func TestQueryExecutedLogsWarnOnError(t *testing.T) {
	audit, logs := newObservedLogger()
	audit.QueryExecuted("device(Id)", 0, 3, errors.New("evaluation failed"))

	entries := logs.All()
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level on query error, got %s", entries[0].Level)
	}
}
