package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusOK).
		BodyHTML("<p>test</p>").
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "<p>test</p>" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "<p>test</p>")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger set without triggers")
	}
}

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerTransactionCreated("tx-1", 2025, 3).
		TriggerDashboardRefresh(2025, 3).
		TriggerFormReset().
		TriggerSuccessNotification("Saved").
		Write(w)

	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"transaction:created", "dashboard:refresh", "form:reset", "show-notification"} {
		if _, ok := triggers[name]; !ok {
			t.Errorf("HX-Trigger missing %q", name)
		}
	}

	var created struct {
		ID    string `json:"id"`
		Year  int    `json:"year"`
		Month int    `json:"month"`
	}
	if err := json.Unmarshal(triggers["transaction:created"], &created); err != nil {
		t.Fatalf("transaction:created payload: %v", err)
	}
	if created.ID != "tx-1" || created.Year != 2025 || created.Month != 3 {
		t.Errorf("transaction:created = %+v", created)
	}
}

func TestHTMXResponseBuilder_CustomHeader(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Header("X-Custom", "value").
		Status(http.StatusCreated).
		Write(w)

	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestErrorNotification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		message    string
		wantBody   string
		wantInHead string
	}{
		{
			name:       "validation",
			status:     http.StatusUnprocessableEntity,
			message:    "invalid amount",
			wantBody:   `<div class="error">invalid amount</div>`,
			wantInHead: `"message":"invalid amount"`,
		},
		{
			name:       "escapes html",
			status:     http.StatusBadRequest,
			message:    "<script>alert('xss')</script>",
			wantBody:   `<div class="error">&lt;script&gt;alert(&#39;xss&#39;)&lt;/script&gt;</div>`,
			wantInHead: `"type":"error"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorNotification(tt.status, tt.message).Write(w)

			if w.Code != tt.status {
				t.Errorf("Status code = %d, want %d", w.Code, tt.status)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if trigger := w.Header().Get("HX-Trigger"); !strings.Contains(trigger, tt.wantInHead) {
				t.Errorf("HX-Trigger %s missing %s", trigger, tt.wantInHead)
			}
		})
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewHTMXResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
