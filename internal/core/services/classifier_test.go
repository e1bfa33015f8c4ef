package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// failingPersonStore fails every lookup.
type failingPersonStore struct {
	*memory.PersonStore
}

func (failingPersonStore) ListPersons(context.Context) ([]domain.PersonIdentity, error) {
	return nil, errors.New("database is locked")
}

func newTestClassifier(t *testing.T) *ProfileClassifier {
	t.Helper()
	persons := memory.NewPersonStore()
	require.NoError(t, persons.SavePerson(context.Background(), &domain.PersonIdentity{
		ID: "p1", Name: "Grace Hopper", Aliases: []string{"Amazing Grace"},
	}))
	return NewProfileClassifier(domain.DefaultAppSettings().Fusion, persons)
}

func TestProfileClassifier_Classify(t *testing.T) {
	profiles := domain.DefaultProfiles()
	tests := []struct {
		name     string
		req      domain.QueryRequest
		wantType domain.QueryType
		want     domain.WeightProfile
	}{
		{
			name:     "text only uses smart profile",
			req:      domain.QueryRequest{Text: "sunset over the sea"},
			wantType: domain.QueryTypeText,
			want:     profiles[domain.ProfileSmart],
		},
		{
			name:     "image only",
			req:      domain.QueryRequest{Image: []byte("png")},
			wantType: domain.QueryTypeImage,
			want:     domain.WeightProfile{domain.ModalityVisual: 1},
		},
		{
			name:     "audio only",
			req:      domain.QueryRequest{Audio: []byte("wav")},
			wantType: domain.QueryTypeAudio,
			want:     domain.WeightProfile{domain.ModalityAudioMusic: 1},
		},
		{
			name:     "video",
			req:      domain.QueryRequest{Video: []byte("mp4")},
			wantType: domain.QueryTypeVideo,
			want:     profiles[domain.ProfileVisualDominant],
		},
		{
			name:     "text and image",
			req:      domain.QueryRequest{Text: "red car", Image: []byte("png")},
			wantType: domain.QueryTypeTextImage,
			want:     profiles[domain.ProfileVisualDominant],
		},
		{
			name:     "text and audio",
			req:      domain.QueryRequest{Text: "applause", Audio: []byte("wav")},
			wantType: domain.QueryTypeTextAudio,
			want:     profiles[domain.ProfileAudioDominant],
		},
		{
			name:     "audio and image",
			req:      domain.QueryRequest{Audio: []byte("wav"), Image: []byte("png")},
			wantType: domain.QueryTypeAudioImage,
			want:     profiles[domain.ProfileAudioDominant],
		},
		{
			name:     "explicit speech mode",
			req:      domain.QueryRequest{Text: "quarterly numbers", Mode: domain.SearchModeSpeech},
			wantType: domain.QueryTypeExplicit,
			want:     domain.WeightProfile{domain.ModalityAudioSpeech: 1},
		},
		{
			name:     "explicit mode ignores person names",
			req:      domain.QueryRequest{Text: "grace hopper", Mode: domain.SearchModeVisual},
			wantType: domain.QueryTypeExplicit,
			want:     domain.WeightProfile{domain.ModalityVisual: 1},
		},
		{
			name:     "person name boosts face",
			req:      domain.QueryRequest{Text: "Grace Hopper giving a talk"},
			wantType: domain.QueryTypePerson,
			want: domain.WeightProfile{
				domain.ModalityFace:        0.5,
				domain.ModalityVisual:      0.2,
				domain.ModalityAudioMusic:  0.15,
				domain.ModalityAudioSpeech: 0.15,
			},
		},
		{
			name:     "alias boosts face",
			req:      domain.QueryRequest{Text: "amazing grace on stage", Image: []byte("png")},
			wantType: domain.QueryTypePerson,
			want: domain.WeightProfile{
				domain.ModalityFace:        0.5,
				domain.ModalityVisual:      0.35,
				domain.ModalityAudioMusic:  0.075,
				domain.ModalityAudioSpeech: 0.075,
			},
		},
		{
			name:     "partial name is not a match",
			req:      domain.QueryRequest{Text: "graceful dancers"},
			wantType: domain.QueryTypeText,
			want:     profiles[domain.ProfileSmart],
		},
	}

	c := newTestClassifier(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, qt, err := c.Classify(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, qt)
			require.Len(t, got, len(tt.want))
			for m, w := range tt.want {
				assert.InDelta(t, w, got[m], 1e-9, m)
			}
			assert.InDelta(t, 1.0, got.Sum(), domain.WeightTolerance)
		})
	}
}

func TestProfileClassifier_WeightsAlwaysSumToOne(t *testing.T) {
	c := newTestClassifier(t)
	inputs := []domain.QueryRequest{
		{Text: "a"},
		{Image: []byte("i")},
		{Audio: []byte("a")},
		{Video: []byte("v")},
		{Text: "grace hopper", Audio: []byte("a")},
		{Text: "grace hopper", Video: []byte("v")},
		{Text: "x", Image: []byte("i"), Audio: []byte("a")},
	}
	for _, mode := range domain.AllSearchModes() {
		for _, req := range inputs {
			req.Mode = mode
			got, _, err := c.Classify(context.Background(), req)
			require.NoError(t, err)
			assert.LessOrEqual(t, math.Abs(got.Sum()-1), domain.WeightTolerance, "%s %+v", mode, got)
			require.NoError(t, got.Validate())
		}
	}
}

func TestProfileClassifier_CustomProfile(t *testing.T) {
	cfg := domain.DefaultAppSettings().Fusion
	cfg.Profiles[domain.ProfileSmart] = domain.WeightProfile{
		domain.ModalityVisual: 2, domain.ModalityAudioSpeech: 2,
	}
	c := NewProfileClassifier(cfg, nil)

	got, qt, err := c.Classify(context.Background(), domain.QueryRequest{Text: "grace hopper"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryTypeText, qt, "no person store, no boost")
	assert.Equal(t, domain.WeightProfile{domain.ModalityVisual: 0.5, domain.ModalityAudioSpeech: 0.5}, got)
}

func TestProfileClassifier_PersonLookupFailure(t *testing.T) {
	c := NewProfileClassifier(domain.DefaultAppSettings().Fusion, failingPersonStore{memory.NewPersonStore()})

	got, qt, err := c.Classify(context.Background(), domain.QueryRequest{Text: "grace hopper"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryTypeText, qt)
	assert.NotContains(t, got, domain.ModalityFace)
}

func TestProfileClassifier_InvalidRequest(t *testing.T) {
	c := newTestClassifier(t)

	_, _, err := c.Classify(context.Background(), domain.QueryRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, _, err = c.Classify(context.Background(), domain.QueryRequest{Text: "x", Mode: "loud"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBoostFace(t *testing.T) {
	got := boostFace(domain.WeightProfile{domain.ModalityVisual: 0.7, domain.ModalityAudioSpeech: 0.3}, 0.4)
	assert.InDelta(t, 0.4, got[domain.ModalityFace], 1e-9)
	assert.InDelta(t, 0.42, got[domain.ModalityVisual], 1e-9)
	assert.InDelta(t, 0.18, got[domain.ModalityAudioSpeech], 1e-9)
	assert.InDelta(t, 1.0, got.Sum(), domain.WeightTolerance)
}
