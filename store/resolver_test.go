package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestResolverSet_ResolveLink(t *testing.T) {
	remote := &testremote{
		T: t,
		getAll: func(t *testing.T, resource string) ([]json.RawMessage, error) {
			switch resource {
			case "reservations":
				return []json.RawMessage{
					json.RawMessage(`{"id":"r1","name":"Nile Cruise"}`),
					json.RawMessage(`{"id":"r2","refNo":"RES-77"}`),
					json.RawMessage(`{"id":"r3"}`),
					json.RawMessage(`not json`),
				}, nil
			case "offers":
				return nil, errors.New("boom")
			default:
				return nil, nil
			}
		},
	}
	resolvers := NewResolvers(remote)

	tests := []struct {
		name      string
		link      Link
		wantLabel string
		wantOK    bool
	}{
		{
			name:      "ByName",
			link:      Link{Type: LinkReservation, ID: "r1"},
			wantLabel: "Reservation Nile Cruise",
			wantOK:    true,
		},
		{
			name:      "ByRefNo",
			link:      Link{Type: LinkReservation, ID: "r2"},
			wantLabel: "Reservation RES-77",
			wantOK:    true,
		},
		{
			name:      "NoDisplayFieldFallsBackToID",
			link:      Link{Type: LinkReservation, ID: "r3"},
			wantLabel: "Reservation r3",
			wantOK:    true,
		},
		{
			name:   "NotFound",
			link:   Link{Type: LinkReservation, ID: "missing"},
			wantOK: false,
		},
		{
			name:   "RemoteError",
			link:   Link{Type: LinkOffer, ID: "o1"},
			wantOK: false,
		},
		{
			name:   "EmptyCollection",
			link:   Link{Type: LinkQuotation, ID: "q1"},
			wantOK: false,
		},
		{
			name:   "UnknownType",
			link:   Link{Type: "booking", ID: "b1"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := resolvers.ResolveLink(context.Background(), tt.link)
			if ok != tt.wantOK {
				t.Fatalf("Got ok=%v, want %v", ok, tt.wantOK)
			}
			if label != tt.wantLabel {
				t.Errorf("Got label %q, want %q", label, tt.wantLabel)
			}
		})
	}
}
