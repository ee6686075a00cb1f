package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStableIDUser(t *testing.T) {
	cases := map[StableID]UserID{
		"eve_1a2b":        "eve",
		"eve":             "eve",
		"user_name_x9":    "user_name",
		"_leading":        "_leading",
		"a1b2-c3d4_local": "a1b2-c3d4",
	}
	for id, want := range cases {
		assert.Equal(t, want, id.User(), string(id))
	}
}

func TestStableIDBelongsTo(t *testing.T) {
	assert.True(t, StableID("frank_abc").BelongsTo("frank"))
	assert.True(t, StableID("frank").BelongsTo("frank"))
	assert.False(t, StableID("frankie_abc").BelongsTo("frank"))
	assert.False(t, StableID("user10_x").BelongsTo("user1"))
	assert.False(t, StableID("frank_abc").BelongsTo(""))
}

func TestParticipantOwner(t *testing.T) {
	p := Participant{StableID: "eve_x"}
	assert.Equal(t, UserID("eve"), p.Owner())
	p.UserID = "eve-real"
	assert.Equal(t, UserID("eve-real"), p.Owner())
}

func TestMatchPredatesWait(t *testing.T) {
	now := time.Now()
	m := &MatchRecord{CreatedAt: now}
	assert.False(t, m.PredatesWait(time.Time{}))
	assert.False(t, m.PredatesWait(now.Add(-time.Second)))
	assert.True(t, m.PredatesWait(now.Add(time.Second)))
}

func TestProfileDisplayName(t *testing.T) {
	assert.Equal(t, AnonymousName, Profile{}.DisplayName())
	assert.Equal(t, AnonymousName, Profile{Name: "  "}.DisplayName())
	assert.Equal(t, "bob", Profile{Name: "bob"}.DisplayName())
}

func TestValidateUserID(t *testing.T) {
	_, err := ValidateUserID(" ")
	assert.ErrorIs(t, err, ErrUserIDEmpty)
	id, err := ValidateUserID(" alice ")
	assert.NoError(t, err)
	assert.Equal(t, UserID("alice"), id)
}
