package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-media/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-media/internal/logger"
)

// Ensure ProfileClassifier implements the interface.
var _ driving.QueryClassifier = (*ProfileClassifier)(nil)

// ProfileClassifier assigns weights from the profile table loaded at startup.
type ProfileClassifier struct {
	profiles  map[domain.ProfileName]domain.WeightProfile
	faceBoost float64
	persons   driven.PersonStore
}

// NewProfileClassifier creates a classifier. persons may be nil, which
// disables the person boost.
func NewProfileClassifier(cfg domain.FusionSettings, persons driven.PersonStore) *ProfileClassifier {
	profiles := domain.DefaultProfiles()
	for name, p := range cfg.Profiles {
		profiles[name] = p.Clone()
	}
	return &ProfileClassifier{
		profiles:  profiles,
		faceBoost: cfg.FaceBoost,
		persons:   persons,
	}
}

// Classify returns the normalised weights for a request.
func (c *ProfileClassifier) Classify(
	ctx context.Context, req domain.QueryRequest,
) (domain.WeightProfile, domain.QueryType, error) {
	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	req = req.Normalized()

	if m, ok := req.Mode.Modality(); ok {
		return domain.WeightProfile{m: 1}, domain.QueryTypeExplicit, nil
	}

	profile, queryType := c.baseProfile(req)

	if req.Text != "" && c.faceBoost > 0 {
		matched, err := matchPersons(ctx, c.persons, req.Text)
		if err != nil {
			logger.Warn("Person lookup failed, skipping face boost: %v", err)
		} else if len(matched) > 0 {
			profile = boostFace(profile, c.faceBoost)
			queryType = domain.QueryTypePerson
			logger.Debug("Query names %d known person(s); face weight %.2f", len(matched), c.faceBoost)
		}
	}

	profile = profile.Normalize()
	if err := profile.Validate(); err != nil {
		return nil, "", fmt.Errorf("classify %s query: %w", queryType, err)
	}
	logger.Debug("Classified %s query: %v", queryType, profile)
	return profile, queryType, nil
}

// baseProfile picks the profile from the inputs present.
func (c *ProfileClassifier) baseProfile(req domain.QueryRequest) (domain.WeightProfile, domain.QueryType) {
	hasText := req.Text != ""
	hasImage := len(req.Image) > 0
	hasAudio := len(req.Audio) > 0

	switch {
	case len(req.Video) > 0:
		return c.profile(domain.ProfileVisualDominant), domain.QueryTypeVideo
	case hasAudio && hasImage:
		return c.profile(domain.ProfileAudioDominant), domain.QueryTypeAudioImage
	case hasText && hasImage:
		return c.profile(domain.ProfileVisualDominant), domain.QueryTypeTextImage
	case hasText && hasAudio:
		return c.profile(domain.ProfileAudioDominant), domain.QueryTypeTextAudio
	case hasImage:
		return domain.WeightProfile{domain.ModalityVisual: 1}, domain.QueryTypeImage
	case hasAudio:
		return domain.WeightProfile{domain.ModalityAudioMusic: 1}, domain.QueryTypeAudio
	default:
		return c.profile(domain.ProfileSmart), domain.QueryTypeText
	}
}

func (c *ProfileClassifier) profile(name domain.ProfileName) domain.WeightProfile {
	if p, ok := c.profiles[name]; ok {
		return p.Clone()
	}
	return c.profiles[domain.ProfileSmart].Clone()
}

// boostFace gives face the boost weight and rescales the rest to fill 1-boost.
func boostFace(profile domain.WeightProfile, boost float64) domain.WeightProfile {
	rest := profile.Without(domain.ModalityFace)
	out := make(domain.WeightProfile, len(rest)+1)
	for m, w := range rest {
		out[m] = w * (1 - boost)
	}
	out[domain.ModalityFace] = boost
	return out
}

// matchPersons returns the registered people named in text.
func matchPersons(ctx context.Context, store driven.PersonStore, text string) ([]domain.PersonIdentity, error) {
	if store == nil || text == "" {
		return nil, nil
	}
	persons, err := store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	var matched []domain.PersonIdentity
	for _, p := range persons {
		if p.MentionedIn(text) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}
