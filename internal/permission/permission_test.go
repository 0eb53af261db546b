package permission

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"discussio-backend/internal/store"
)

func TestCompute(t *testing.T) {
	creator := primitive.NewObjectID()
	drawer := primitive.NewObjectID()
	speaker := primitive.NewObjectID()
	sharer := primitive.NewObjectID()
	outsider := primitive.NewObjectID()

	wb := &store.Whiteboard{
		CreatedBy:      creator,
		CanDraw:        []primitive.ObjectID{drawer},
		CanSpeak:       []primitive.ObjectID{speaker},
		CanShareScreen: []primitive.ObjectID{sharer},
	}

	tests := []struct {
		name   string
		userID string
		want   Permissions
	}{
		{
			name:   "creator has everything implicitly",
			userID: creator.Hex(),
			want:   Permissions{CanDraw: true, CanSpeak: true, CanShare: true, CanPublish: true},
		},
		{
			name:   "granted drawer cannot publish",
			userID: drawer.Hex(),
			want:   Permissions{CanDraw: true},
		},
		{
			name:   "granted speaker can publish",
			userID: speaker.Hex(),
			want:   Permissions{CanSpeak: true, CanPublish: true},
		},
		{
			name:   "granted screen sharer can publish",
			userID: sharer.Hex(),
			want:   Permissions{CanShare: true, CanPublish: true},
		},
		{
			name:   "outsider has nothing",
			userID: outsider.Hex(),
			want:   Permissions{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(wb, tt.userID)
			if got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputePublishAlgebra(t *testing.T) {
	// can_publish must equal can_speak OR can_share for every combination
	creator := primitive.NewObjectID()
	user := primitive.NewObjectID()

	for _, speak := range []bool{false, true} {
		for _, share := range []bool{false, true} {
			wb := &store.Whiteboard{CreatedBy: creator}
			if speak {
				wb.CanSpeak = []primitive.ObjectID{user}
			}
			if share {
				wb.CanShareScreen = []primitive.ObjectID{user}
			}

			got := Compute(wb, user.Hex())
			if got.CanPublish != (got.CanSpeak || got.CanShare) {
				t.Errorf("speak=%v share=%v: CanPublish=%v, want %v",
					speak, share, got.CanPublish, got.CanSpeak || got.CanShare)
			}
		}
	}
}

func TestComputeCreatorIgnoresGrantLists(t *testing.T) {
	creator := primitive.NewObjectID()
	other := primitive.NewObjectID()

	// grant lists only mention someone else; creator still holds all rights
	wb := &store.Whiteboard{
		CreatedBy:      creator,
		CanDraw:        []primitive.ObjectID{other},
		CanSpeak:       []primitive.ObjectID{other},
		CanShareScreen: []primitive.ObjectID{other},
	}

	got := Compute(wb, creator.Hex())
	if !got.CanDraw || !got.CanSpeak || !got.CanShare || !got.CanPublish {
		t.Errorf("creator permissions = %+v, want all true", got)
	}
}
