// Package livekit bridges internal permission state to the external media
// provider. Internal state is the source of truth; calls out to the provider
// are asynchronous and eventually consistent with it.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"

	"discussio-backend/internal/config"
	"discussio-backend/internal/permission"
)

// ErrRoomFull is returned when a not-yet-present user requests a token for a
// room at its participant cap.
var ErrRoomFull = errors.New("room is at participant capacity")

// RoomService is the subset of the LiveKit room API the bridge uses.
// *lksdk.RoomServiceClient satisfies it.
type RoomService interface {
	ListParticipants(ctx context.Context, req *livekit.ListParticipantsRequest) (*livekit.ListParticipantsResponse, error)
	UpdateParticipant(ctx context.Context, req *livekit.UpdateParticipantRequest) (*livekit.ParticipantInfo, error)
	RemoveParticipant(ctx context.Context, req *livekit.RoomParticipantIdentity) (*livekit.RemoveParticipantResponse, error)
	DeleteRoom(ctx context.Context, req *livekit.DeleteRoomRequest) (*livekit.DeleteRoomResponse, error)
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// Bridge issues access tokens and pushes permission changes to the media
// provider through a bounded worker pool, so grant/revoke handling never
// blocks on provider round trips.
type Bridge struct {
	svc             RoomService
	apiKey          string
	apiSecret       string
	tokenValidity   time.Duration
	maxParticipants int
	requestTimeout  time.Duration

	tasks chan task
	wg    sync.WaitGroup
}

// NewBridge creates a Bridge and starts its dispatch workers.
func NewBridge(cfg *config.LiveKitConfig, svc RoomService) *Bridge {
	b := &Bridge{
		svc:             svc,
		apiKey:          cfg.APIKey,
		apiSecret:       cfg.APISecret,
		tokenValidity:   cfg.TokenValidity,
		maxParticipants: cfg.MaxParticipants,
		requestTimeout:  cfg.RequestTimeout,
		tasks:           make(chan task, cfg.DispatcherQueueSize),
	}

	workers := cfg.DispatcherWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Close stops accepting work and waits for in-flight tasks to finish.
func (b *Bridge) Close() {
	close(b.tasks)
	b.wg.Wait()
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for t := range b.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), b.requestTimeout)
		if err := t.run(ctx); err != nil {
			log.Printf("[LiveKit] %s failed: %v", t.name, err)
		}
		cancel()
	}
}

// dispatch enqueues a provider call. A full queue drops the task with a log
// line rather than blocking the caller.
func (b *Bridge) dispatch(name string, run func(ctx context.Context) error) {
	select {
	case b.tasks <- task{name: name, run: run}:
	default:
		log.Printf("[LiveKit] queue full, dropped %s", name)
	}
}

// IssueToken mints an access token for a participant. For users not already
// in the room it enforces the participant cap against current occupancy;
// already-present users are never blocked, so reconnects always succeed.
func (b *Bridge) IssueToken(ctx context.Context, room, identity, name string, perms permission.Permissions) (string, error) {
	if err := b.checkCapacity(ctx, room, identity); err != nil {
		return "", err
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	grant.SetCanPublish(perms.CanPublish)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := auth.NewAccessToken(b.apiKey, b.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(b.tokenValidity)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}

func (b *Bridge) checkCapacity(ctx context.Context, room, identity string) error {
	if b.maxParticipants <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.requestTimeout)
	defer cancel()

	res, err := b.svc.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		// room may not exist yet; the cap cannot apply to an empty room
		log.Printf("[LiveKit] list participants for %s: %v", room, err)
		return nil
	}

	for _, p := range res.Participants {
		if p.Identity == identity {
			return nil
		}
	}
	if len(res.Participants) >= b.maxParticipants {
		return ErrRoomFull
	}
	return nil
}

// UpdatePublishPermission pushes a participant's publish right to the
// provider. Asynchronous; failures are logged and the internal permission
// state stands.
func (b *Bridge) UpdatePublishPermission(room, identity string, canPublish bool) {
	b.dispatch("update participant "+identity, func(ctx context.Context) error {
		_, err := b.svc.UpdateParticipant(ctx, &livekit.UpdateParticipantRequest{
			Room:     room,
			Identity: identity,
			Permission: &livekit.ParticipantPermission{
				CanPublish:     canPublish,
				CanSubscribe:   true,
				CanPublishData: true,
			},
		})
		return err
	})
}

// RemoveParticipant kicks a participant out of the media room. Asynchronous.
func (b *Bridge) RemoveParticipant(room, identity string) {
	b.dispatch("remove participant "+identity, func(ctx context.Context) error {
		_, err := b.svc.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
			Room:     room,
			Identity: identity,
		})
		return err
	})
}

// CloseRoom tears down the media room for all participants. Asynchronous.
func (b *Bridge) CloseRoom(room string) {
	b.dispatch("delete room "+room, func(ctx context.Context) error {
		_, err := b.svc.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: room})
		return err
	})
}
