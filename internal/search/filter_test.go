package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wheelmate/wheelmate/internal/model"
)

func filterPlace(name string, rating model.Rating, features ...string) model.Place {
	return model.Place{Name: name, Type: "cafe", Location: paris, Rating: rating, Features: features}
}

func TestFilter_ZeroValueKeepsEverything(t *testing.T) {
	places := []model.Place{
		filterPlace("a", model.RatingUnknown),
		filterPlace("b", model.RatingNot),
	}
	assert.Equal(t, places, Filter{}.Apply(places))
}

func TestFilter_Features(t *testing.T) {
	ramp := filterPlace("ramp", model.RatingFully, "Ramp", "Wheelchair-accessible restroom")
	restroom := filterPlace("restroom", model.RatingPartially, "Wheelchair-accessible restroom")
	none := filterPlace("none", model.RatingNot)

	got := Filter{Features: []string{FeatureRamp, FeatureRestroom}}.Apply([]model.Place{ramp, restroom, none})
	assert.Equal(t, []string{"ramp"}, names(got))

	got = Filter{Features: []string{FeatureRestroom}}.Apply([]model.Place{ramp, restroom, none})
	assert.Equal(t, []string{"ramp", "restroom"}, names(got))
}

func TestFilter_WideDoor(t *testing.T) {
	wide := filterPlace("wide", model.RatingFully)
	wide.Physical.DoorWidthCM = model.Float64(90)
	narrow := filterPlace("narrow", model.RatingFully, "wide door")
	narrow.Physical.DoorWidthCM = model.Float64(70)
	tagged := filterPlace("tagged", model.RatingFully, "Wide door")
	unknown := filterPlace("unknown", model.RatingFully)

	got := Filter{Features: []string{FeatureWideDoor}}.Apply([]model.Place{wide, narrow, tagged, unknown})
	assert.Equal(t, []string{"wide", "tagged"}, names(got))
}

func TestFilter_SmoothSurface(t *testing.T) {
	smooth := filterPlace("smooth", model.RatingFully)
	smooth.Physical.Surface = model.String("Paved")
	gravel := filterPlace("gravel", model.RatingFully)
	gravel.Physical.Surface = model.String("gravel")
	unknown := filterPlace("unknown", model.RatingFully)

	got := Filter{SmoothSurface: true}.Apply([]model.Place{smooth, gravel, unknown})
	assert.Equal(t, []string{"smooth"}, names(got))
}

func TestFilter_Slope(t *testing.T) {
	flat := filterPlace("flat", model.RatingFully)
	flat.Physical.SlopeDeg = model.Float64(2)
	steep := filterPlace("steep", model.RatingFully)
	steep.Physical.SlopeDeg = model.Float64(12)
	edge := filterPlace("edge", model.RatingFully)
	edge.Physical.SlopeDeg = model.Float64(8)
	unknown := filterPlace("unknown", model.RatingFully)
	places := []model.Place{flat, steep, edge, unknown}

	maxSlope := model.Float64(8)
	assert.Equal(t, []string{"flat", "edge", "unknown"}, names(Filter{MaxSlopeDeg: maxSlope}.Apply(places)))
	assert.Equal(t, []string{"flat", "edge"}, names(Filter{MaxSlopeDeg: maxSlope, RequireLowSlope: true}.Apply(places)))
}

func TestFilter_DoorWidth(t *testing.T) {
	wide := filterPlace("wide", model.RatingFully)
	wide.Physical.DoorWidthCM = model.Float64(85)
	narrow := filterPlace("narrow", model.RatingFully)
	narrow.Physical.DoorWidthCM = model.Float64(60)
	unknown := filterPlace("unknown", model.RatingFully)

	got := Filter{MinDoorWidthCM: model.Float64(80)}.Apply([]model.Place{wide, narrow, unknown})
	assert.Equal(t, []string{"wide", "unknown"}, names(got))
}

func TestFilter_RatingAndType(t *testing.T) {
	fully := filterPlace("fully", model.RatingFully)
	partially := filterPlace("partially", model.RatingPartially)
	partially.Type = "museum"
	not := filterPlace("not", model.RatingNot)
	unknown := filterPlace("unknown", model.RatingUnknown)
	places := []model.Place{fully, partially, not, unknown}

	assert.Equal(t, []string{"fully", "partially"}, names(Filter{MinRating: model.RatingPartially}.Apply(places)))
	assert.Equal(t, []string{"partially"}, names(Filter{Types: []string{" Museum "}}.Apply(places)))
}

func TestParseFeatures(t *testing.T) {
	ok, unknown := ParseFeatures("Ramp, elevator,,wide_door,lift")
	assert.Equal(t, []string{"ramp", "elevator", "wide_door"}, ok)
	assert.Equal(t, []string{"lift"}, unknown)

	ok, unknown = ParseFeatures("")
	assert.Empty(t, ok)
	assert.Empty(t, unknown)
}
