package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebhook_PublishSignsPayload(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Clinicflow-Signature")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "s3cret", zerolog.Nop())
	wh.Publish(context.Background(), Event{
		Type:      EventPrescriptionIssued,
		PatientID: "9876543210",
	})

	if gotSig == "" {
		t.Fatal("expected signature header")
	}
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(gotBody)
	if gotSig != hex.EncodeToString(mac.Sum(nil)) {
		t.Error("signature does not match payload")
	}

	var ev Event
	if err := json.Unmarshal(gotBody, &ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID == "" {
		t.Error("expected generated event id")
	}
	if ev.OccurredAt.IsZero() {
		t.Error("expected occurred_at to be stamped")
	}
}

func TestWebhook_EndpointErrorIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "s3cret", zerolog.Nop())
	// Must not panic or block the caller.
	wh.Publish(context.Background(), Event{Type: EventDoctorAssigned})
}

func TestNop(t *testing.T) {
	Nop{}.Publish(context.Background(), Event{Type: EventDoctorAssigned})
}
