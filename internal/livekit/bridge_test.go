package livekit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"

	"discussio-backend/internal/config"
	"discussio-backend/internal/permission"
)

type fakeRoomService struct {
	mu           sync.Mutex
	participants map[string][]string // room -> identities
	listErr      error

	updated chan *livekit.UpdateParticipantRequest
	removed chan *livekit.RoomParticipantIdentity
	deleted chan string
}

func newFakeRoomService() *fakeRoomService {
	return &fakeRoomService{
		participants: make(map[string][]string),
		updated:      make(chan *livekit.UpdateParticipantRequest, 8),
		removed:      make(chan *livekit.RoomParticipantIdentity, 8),
		deleted:      make(chan string, 8),
	}
}

func (f *fakeRoomService) ListParticipants(_ context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	res := &livekit.ListParticipantsResponse{}
	for _, id := range f.participants[req.Room] {
		res.Participants = append(res.Participants, &livekit.ParticipantInfo{Identity: id})
	}
	return res, nil
}

func (f *fakeRoomService) UpdateParticipant(_ context.Context, req *livekit.UpdateParticipantRequest) (*livekit.ParticipantInfo, error) {
	f.updated <- req
	return &livekit.ParticipantInfo{Identity: req.Identity}, nil
}

func (f *fakeRoomService) RemoveParticipant(_ context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error) {
	f.removed <- req
	return &livekit.RemoveParticipantResponse{}, nil
}

func (f *fakeRoomService) DeleteRoom(_ context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error) {
	f.deleted <- req.Room
	return &livekit.DeleteRoomResponse{}, nil
}

func testBridge(svc RoomService, maxParticipants int) *Bridge {
	return NewBridge(&config.LiveKitConfig{
		APIKey:              "test-key",
		APISecret:           "test-secret-at-least-32-characters!!",
		TokenValidity:       time.Hour,
		RequestTimeout:      time.Second,
		MaxParticipants:     maxParticipants,
		DispatcherWorkers:   2,
		DispatcherQueueSize: 8,
	}, svc)
}

func TestIssueTokenCap(t *testing.T) {
	svc := newFakeRoomService()
	svc.participants["whiteboard:abc"] = []string{"u1", "u2", "u3"}

	b := testBridge(svc, 3)
	defer b.Close()

	tests := []struct {
		name     string
		identity string
		wantErr  error
	}{
		{name: "new user blocked at cap", identity: "u4", wantErr: ErrRoomFull},
		{name: "present user reconnects past cap", identity: "u2", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := b.IssueToken(context.Background(), "whiteboard:abc", tt.identity, "User", permission.Permissions{CanPublish: true})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("IssueToken error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && token == "" {
				t.Error("IssueToken returned empty token")
			}
		})
	}
}

func TestIssueTokenBelowCap(t *testing.T) {
	svc := newFakeRoomService()
	svc.participants["whiteboard:abc"] = []string{"u1"}

	b := testBridge(svc, 3)
	defer b.Close()

	token, err := b.IssueToken(context.Background(), "whiteboard:abc", "u2", "User Two", permission.Permissions{})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if token == "" {
		t.Error("IssueToken returned empty token")
	}
}

func TestIssueTokenListFailureDoesNotBlock(t *testing.T) {
	// a room the provider has never seen lists as an error; the cap cannot
	// apply to an empty room
	svc := newFakeRoomService()
	svc.listErr = errors.New("room not found")

	b := testBridge(svc, 1)
	defer b.Close()

	if _, err := b.IssueToken(context.Background(), "whiteboard:new", "u1", "User", permission.Permissions{}); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
}

func TestUpdatePublishPermissionAsync(t *testing.T) {
	svc := newFakeRoomService()
	b := testBridge(svc, 10)

	b.UpdatePublishPermission("whiteboard:abc", "u1", false)
	b.Close() // waits for workers to drain

	select {
	case req := <-svc.updated:
		if req.Room != "whiteboard:abc" || req.Identity != "u1" {
			t.Errorf("update = %s/%s, want whiteboard:abc/u1", req.Room, req.Identity)
		}
		if req.Permission == nil || req.Permission.CanPublish {
			t.Errorf("permission = %+v, want CanPublish=false", req.Permission)
		}
	default:
		t.Fatal("no update reached the room service")
	}
}

func TestCloseRoomAndRemoveParticipant(t *testing.T) {
	svc := newFakeRoomService()
	b := testBridge(svc, 10)

	b.RemoveParticipant("whiteboard:abc", "u1")
	b.CloseRoom("whiteboard:abc")
	b.Close()

	select {
	case req := <-svc.removed:
		if req.Identity != "u1" {
			t.Errorf("removed identity = %s, want u1", req.Identity)
		}
	default:
		t.Error("participant removal never reached the room service")
	}

	select {
	case room := <-svc.deleted:
		if room != "whiteboard:abc" {
			t.Errorf("deleted room = %s, want whiteboard:abc", room)
		}
	default:
		t.Error("room deletion never reached the room service")
	}
}
