package teamgate

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/MrEthical07/teamgate/secret"
)

func TestJSONWriterSinkEncodesEntry(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	entry := newAuditEntry("acc-1", secret.PurposePasswordReset, "203.0.113.7", OutcomeBlocked, testStart)
	sink.Emit(context.Background(), entry)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if decoded["account_id"] != "acc-1" || decoded["purpose"] != "password-reset" || decoded["outcome"] != "blocked" {
		t.Fatalf("unexpected encoding: %v", decoded)
	}
	if decoded["source_address"] != "203.0.113.7" {
		t.Fatalf("unexpected source: %v", decoded["source_address"])
	}
}

func TestRateGuardDecisions(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := secret.NewRedisStore(rdb)
	sink := NewChannelSink(4)
	ctx := context.Background()

	guard, err := NewRateGuard(store, time.Minute, sink)
	if err != nil {
		t.Fatalf("NewRateGuard failed: %v", err)
	}

	d, err := guard.CheckAndRecord(ctx, "acc-1", secret.PurposeMFA, testStart, "")
	if err != nil || !d.Allowed {
		t.Fatalf("expected allowed with no live secret, got %+v err=%v", d, err)
	}

	if _, err := store.Issue(ctx, "acc-1", secret.PurposeMFA, "123456", testStart, 5*time.Minute); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	d, err = guard.CheckAndRecord(ctx, "acc-1", secret.PurposeMFA, testStart.Add(59*time.Second+500*time.Millisecond), "10.0.0.1")
	if err != nil || d.Allowed || d.RetryAfterSeconds != 1 {
		t.Fatalf("expected denial with retry 1, got %+v err=%v", d, err)
	}
	select {
	case entry := <-sink.Records():
		if entry.Outcome != OutcomeBlocked || entry.SourceAddress != "10.0.0.1" {
			t.Fatalf("unexpected audit entry: %+v", entry)
		}
	default:
		t.Fatal("expected blocked entry")
	}

	d, err = guard.CheckAndRecord(ctx, "acc-1", secret.PurposePasswordReset, testStart.Add(time.Second), "")
	if err != nil || !d.Allowed {
		t.Fatalf("expected other purpose allowed, got %+v err=%v", d, err)
	}

	d, err = guard.CheckAndRecord(ctx, "acc-1", secret.PurposeMFA, testStart.Add(time.Minute), "")
	if err != nil || !d.Allowed {
		t.Fatalf("expected allowed at cooldown boundary, got %+v err=%v", d, err)
	}
}

func TestNewRateGuardValidation(t *testing.T) {
	if _, err := NewRateGuard(nil, time.Minute, nil); err == nil {
		t.Fatal("expected nil store rejected")
	}
	_, rdb := newTestRedis(t)
	if _, err := NewRateGuard(secret.NewRedisStore(rdb), 0, nil); err == nil {
		t.Fatal("expected zero cooldown rejected")
	}
}
