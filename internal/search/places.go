package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wheelmate/wheelmate/internal/model"
)

// MaxPhotoBytes bounds the size of a stored place photo.
const MaxPhotoBytes = 10 << 20

// Verify records that user confirmed the accessibility of a place.
func (e *Engine) Verify(ctx context.Context, placeName, user string, verified bool) error {
	placeName = strings.TrimSpace(placeName)
	user = strings.TrimSpace(user)
	if placeName == "" {
		return eris.New("search: verify: place name is required")
	}
	if user == "" {
		return eris.New("search: verify: user is required")
	}

	v := model.Verification{
		PlaceName: placeName,
		User:      user,
		Verified:  verified,
		Timestamp: e.now().UTC(),
	}
	if err := e.store.RecordVerification(ctx, v); err != nil {
		return eris.Wrapf(err, "search: verify %q", placeName)
	}
	zap.L().Info("search: verification recorded",
		zap.String("place", placeName),
		zap.String("user", user),
		zap.Bool("verified", verified),
	)
	return nil
}

// Rate overrides the stored rating of a place. The place must already be
// in the cache.
func (e *Engine) Rate(ctx context.Context, placeName string, rating model.Rating) error {
	placeName = strings.TrimSpace(placeName)
	if placeName == "" {
		return eris.New("search: rate: place name is required")
	}
	if !rating.Valid() {
		return eris.Errorf("search: rate: invalid rating %d", int(rating))
	}
	if err := e.store.SetRating(ctx, placeName, rating); err != nil {
		return eris.Wrapf(err, "search: rate %q", placeName)
	}
	zap.L().Info("search: rating updated",
		zap.String("place", placeName),
		zap.Stringer("rating", rating),
	)
	return nil
}

// SetPhoto attaches an image to a cached place.
func (e *Engine) SetPhoto(ctx context.Context, placeName string, photo []byte) error {
	placeName = strings.TrimSpace(placeName)
	if placeName == "" {
		return eris.New("search: photo: place name is required")
	}
	if len(photo) == 0 {
		return eris.New("search: photo: image is empty")
	}
	if len(photo) > MaxPhotoBytes {
		return eris.Errorf("search: photo: image is %d bytes, limit is %d", len(photo), MaxPhotoBytes)
	}
	if err := e.store.SetPhoto(ctx, placeName, photo); err != nil {
		return eris.Wrapf(err, "search: photo %q", placeName)
	}
	return nil
}

// Place returns one cached place with its verifications.
func (e *Engine) Place(ctx context.Context, placeName string) (*model.Place, []model.Verification, error) {
	p, err := e.store.Get(ctx, placeName)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "search: get %q", placeName)
	}
	vs, err := e.store.Verifications(ctx, placeName)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "search: verifications of %q", placeName)
	}
	return p, vs, nil
}
