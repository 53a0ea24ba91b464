/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package dialogs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tejzpr/quickblox-go-sdk/qbsdk"
)

func newTestPlugin(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	config := qbsdk.DefaultConfig()
	config.BaseURL = server.URL
	config.Timeout = 5 * time.Second
	config.HttpClient = server.Client()
	config.RetryBaseDelay = time.Millisecond
	config.Logger = qbsdk.NopLogger()

	client, err := qbsdk.NewClient("test-token", config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return New(client, nil), server
}

func TestList(t *testing.T) {
	plugin, server := newTestPlugin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/Dialog.json" {
			t.Errorf("Expected path '/chat/Dialog.json', got '%s'", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("limit") != "2" || q.Get("type[in]") != "2,3" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}

		w.Header().Set("Content-Type", "application/json")
		if q.Get("skip") == "2" {
			_, _ = w.Write([]byte(`{"total_entries":3,"skip":2,"limit":2,"items":[{"_id":"d3","type":3,"occupants_ids":[1,2]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"total_entries":3,"skip":0,"limit":2,"items":[
			{"_id":"d1","name":"Team","type":2,"occupants_ids":[1,2,3],"xmpp_room_jid":"555_d1@muc.chat.quickblox.com"},
			{"_id":"d2","type":3,"occupants_ids":[1,4],"unread_messages_count":5}]}`))
	})
	defer server.Close()

	page, err := plugin.List(&ListOptions{Limit: 2, Filters: map[string]string{"type[in]": "2,3"}})
	if err != nil {
		t.Fatalf("Failed to list dialogs: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("Expected 2 dialogs, got %d", len(page.Items))
	}
	if page.Items[0].XMPPRoomJID != "555_d1@muc.chat.quickblox.com" || len(page.Items[0].OccupantsIDs) != 3 {
		t.Errorf("Unexpected first dialog %+v", page.Items[0])
	}
	if page.Items[1].UnreadMessagesCount != 5 {
		t.Errorf("Expected 5 unread, got %d", page.Items[1].UnreadMessagesCount)
	}
	if !page.HasNext || page.HasPrev {
		t.Errorf("Expected next but no prev, got next=%v prev=%v", page.HasNext, page.HasPrev)
	}

	next, err := page.Next()
	if err != nil {
		t.Fatalf("Failed to fetch next page: %v", err)
	}
	if len(next.Items) != 1 || next.HasNext || !next.HasPrev {
		t.Errorf("Unexpected next page %+v", next)
	}
}

func TestCreate(t *testing.T) {
	plugin, server := newTestPlugin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got %s", r.Method)
		}

		var dialog Dialog
		if err := json.NewDecoder(r.Body).Decode(&dialog); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if dialog.Type != TypeGroup || dialog.Name != "Team" {
			t.Errorf("Unexpected dialog in request %+v", dialog)
		}

		dialog.ID = "d1"
		dialog.XMPPRoomJID = "555_d1@muc.chat.quickblox.com"
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(dialog)
	})
	defer server.Close()

	dialog, err := plugin.Create(&Dialog{Type: TypeGroup, Name: "Team", OccupantsIDs: []int{2, 3}})
	if err != nil {
		t.Fatalf("Failed to create dialog: %v", err)
	}
	if dialog.ID != "d1" || dialog.XMPPRoomJID == "" {
		t.Errorf("Unexpected dialog %+v", dialog)
	}

	tests := []struct {
		name   string
		dialog *Dialog
	}{
		{"no type", &Dialog{Name: "x"}},
		{"group without name", &Dialog{Type: TypeGroup}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := plugin.Create(tt.dialog); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	plugin, server := newTestPlugin(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/chat/Dialog/d1.json" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}

		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if string(body["push_all"]) != `{"occupants_ids":[5,6]}` {
			t.Errorf("Unexpected push_all %s", body["push_all"])
		}
		if _, ok := body["pull_all"]; ok {
			t.Error("Expected pull_all to be omitted")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_id":"d1","name":"Renamed","type":2,"occupants_ids":[1,5,6]}`))
	})
	defer server.Close()

	dialog, err := plugin.Update("d1", &DialogUpdate{Name: "Renamed", PushAll: &OccupantsUpdate{OccupantsIDs: []int{5, 6}}})
	if err != nil {
		t.Fatalf("Failed to update dialog: %v", err)
	}
	if dialog.Name != "Renamed" || len(dialog.OccupantsIDs) != 3 {
		t.Errorf("Unexpected dialog %+v", dialog)
	}

	if _, err := plugin.Update("", &DialogUpdate{}); err == nil {
		t.Error("Expected error for missing dialogID")
	}
}

func TestDelete(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusNoContent} {
		plugin, server := newTestPlugin(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/chat/Dialog/d1.json" {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(status)
		})

		if err := plugin.Delete("d1"); err != nil {
			t.Errorf("Status %d: failed to delete dialog: %v", status, err)
		}
		server.Close()
	}
}

func TestDelete_Forbidden(t *testing.T) {
	plugin, server := newTestPlugin(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["You don't have appropriate permissions to perform this operation"]}`))
	})
	defer server.Close()

	err := plugin.Delete("d1")
	if !qbsdk.IsForbidden(err) {
		t.Errorf("Expected forbidden error, got %v", err)
	}
}
