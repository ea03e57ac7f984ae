package models_test

import (
	"errors"
	"reflect"
	"testing"

	"sapex/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string    { return &s }
func floatPtr(f float64) *float64 { return &f }

// TestSessionBeforeCreate_GeneratesUUID verifies that the BeforeCreate hook generates a valid UUID.
func TestSessionBeforeCreate_GeneratesUUID(t *testing.T) {
	s := &models.SupportSession{SeekerID: "seeker-1", Topic: models.TopicStress}
	assert.Empty(t, s.ID)

	err := s.BeforeCreate(nil)

	assert.NoError(t, err)
	parsed, parseErr := uuid.Parse(s.ID)
	assert.NoError(t, parseErr, "session id must be a valid UUID")
	assert.NotEqual(t, uuid.Nil, parsed)
}

// TestSessionBeforeCreate_PreservesExistingID verifies that the hook doesn't overwrite an existing ID.
func TestSessionBeforeCreate_PreservesExistingID(t *testing.T) {
	existing := uuid.New().String()
	s := &models.SupportSession{ID: existing}

	assert.NoError(t, s.BeforeCreate(nil))
	assert.Equal(t, existing, s.ID)
}

func TestMessageBeforeCreate_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		m := &models.Message{SessionID: "s", Content: "hi"}
		assert.NoError(t, m.BeforeCreate(nil))
		assert.NotContains(t, seen, m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 5)
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Topic
		wantErr bool
	}{
		{in: "stress", want: models.TopicStress},
		{in: "  Burnout ", want: models.TopicBurnout},
		{in: "STUDY", want: models.TopicStudy},
		{in: "", wantErr: true},
		{in: "gaming", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := models.ParseTopic(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, models.ErrInvalidTopic))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionState(t *testing.T) {
	tests := []struct {
		name    string
		session models.SupportSession
		want    models.SessionState
		wantErr bool
	}{
		{
			name:    "awaiting match",
			session: models.SupportSession{ID: "a"},
			want:    models.Unmatched{},
		},
		{
			name:    "matched",
			session: models.SupportSession{ID: "b", HelperID: strPtr("h1"), Status: models.StatusMatched},
			want:    models.Matched{HelperID: "h1"},
		},
		{
			name:    "closed",
			session: models.SupportSession{ID: "c", HelperID: strPtr("h1"), Outcome: floatPtr(0.7)},
			want:    models.Closed{HelperID: "h1", Outcome: 0.7},
		},
		{
			name:    "outcome without helper",
			session: models.SupportSession{ID: "d", Outcome: floatPtr(0.3)},
			wantErr: true,
		},
		{
			name:    "empty helper id counts as absent",
			session: models.SupportSession{ID: "e", HelperID: strPtr("")},
			want:    models.Unmatched{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.session.State()
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrIllegalState)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionQueryMatches(t *testing.T) {
	open := &models.SupportSession{ID: "1", SeekerID: "s1", Topic: models.TopicStress}
	matched := &models.SupportSession{ID: "2", SeekerID: "s1", HelperID: strPtr("h1"), Status: models.StatusMatched}
	closed := &models.SupportSession{ID: "3", SeekerID: "s2", HelperID: strPtr("h1"), Status: models.StatusMatched, Outcome: floatPtr(1)}

	helperOpen := models.SessionQuery{HelperID: "h1", OpenOnly: true}
	assert.False(t, helperOpen.Matches(open))
	assert.True(t, helperOpen.Matches(matched))
	assert.False(t, helperOpen.Matches(closed), "closed sessions never match open queries")

	notifier := models.SessionQuery{HelperID: "h1", Status: models.StatusMatched}
	assert.True(t, notifier.Matches(matched))
	assert.True(t, notifier.Matches(closed))

	waiting := models.SessionQuery{UnmatchedOnly: true, OpenOnly: true}
	assert.True(t, waiting.Matches(open))
	assert.False(t, waiting.Matches(matched))

	seeker := models.SessionQuery{SeekerID: "s1"}
	assert.True(t, seeker.Matches(open))
	assert.False(t, seeker.Matches(closed))

	assert.False(t, models.SessionQuery{}.Matches(nil))
}

func TestSessionCloneIsDeep(t *testing.T) {
	orig := models.SupportSession{ID: "x", HelperID: strPtr("h"), Outcome: floatPtr(0.5)}
	cp := orig.Clone()
	*cp.HelperID = "other"
	*cp.Outcome = 0.9

	assert.Equal(t, "h", *orig.HelperID)
	assert.Equal(t, 0.5, *orig.Outcome)
	assert.False(t, orig.Equal(cp))
	assert.True(t, orig.Equal(orig.Clone()))
}

func TestHelperCovers(t *testing.T) {
	all := &models.Helper{ID: "h1"}
	assert.True(t, all.Covers(models.TopicHeartbreak))

	some := &models.Helper{ID: "h2", Topics: pq.StringArray{"study", "stress"}}
	assert.True(t, some.Covers(models.TopicStudy))
	assert.False(t, some.Covers(models.TopicLoneliness))
}

// TestModelStructTags verifies that struct tags are correctly defined for GORM and JSON.
func TestModelStructTags(t *testing.T) {
	sessionType := reflect.TypeOf(models.SupportSession{})

	idField, found := sessionType.FieldByName("ID")
	assert.True(t, found)
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")

	helperField, found := sessionType.FieldByName("HelperID")
	assert.True(t, found)
	assert.Equal(t, "helperId", helperField.Tag.Get("json"))

	topicsField, found := reflect.TypeOf(models.Helper{}).FieldByName("Topics")
	assert.True(t, found)
	assert.Contains(t, topicsField.Tag.Get("gorm"), "type:text[]", "Topics should use PostgreSQL array type")

	assert.Equal(t, "esupport", models.SupportSession{}.TableName())
	assert.Equal(t, "esupport_messages", models.Message{}.TableName())
}
