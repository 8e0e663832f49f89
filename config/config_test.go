package config

import (
	"testing"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/gemmapper/gemerrors"
	"github.com/grailbio/gemmapper/pattern"
	"github.com/grailbio/gemmapper/pe"
	"github.com/grailbio/gemmapper/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsUnknownMappingMode(t *testing.T) {
	c := Default()
	c.MappingMode = "bogus"
	err := c.Validate()
	require.Error(t, err)
	e, ok := err.(*baseerrors.Error)
	require.True(t, ok, "Validate must return a *errors.Error so callers can distinguish ConfigurationError")
	assert.Equal(t, gemerrors.Configuration, e.Kind)
}

func TestValidateRejectsZeroQualityThresholdUnderGemModel(t *testing.T) {
	c := Default()
	c.QualityThreshold = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsInvertedTemplateWindow(t *testing.T) {
	c := Default()
	c.PairedEndSearch = true
	c.MinTemplateLength = 500
	c.MaxTemplateLength = 100
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsOrderedTemplateWindow(t *testing.T) {
	c := Default()
	c.PairedEndSearch = true
	c.MinTemplateLength = 100
	c.MaxTemplateLength = 500
	assert.NoError(t, c.Validate())
}

func TestNominalInstantiateResolvesFractionAndCount(t *testing.T) {
	assert.Equal(t, 4, NominalInstantiate(0.04, 100))
	assert.Equal(t, 5, NominalInstantiate(0.041, 100)) // ceil(4.1) = 5
	assert.Equal(t, 3, NominalInstantiate(3, 100))     // already an absolute count
}

func TestSearchParamsInstantiatesNominalFields(t *testing.T) {
	c := Default()
	params := c.SearchParams(100, nil)
	assert.Equal(t, search.ModeFast, params.Mode)
	assert.Equal(t, NominalInstantiate(c.CompleteSearchError, 100), params.CompleteSearchError)
	assert.Equal(t, NominalInstantiate(c.MaxBandwidth, 100), params.MaxBandwidth)
	assert.Equal(t, c.SearchMaxMatches, params.MaxReportedMatches)
}

func TestPatternParamsMapsQualityModelAndFormat(t *testing.T) {
	c := Default()
	c.QualityModel = "gem"
	c.QualityFormat = "offset_33"
	params := c.PatternParams(100)
	assert.Equal(t, pattern.QualityGem, params.QualityModel)
	assert.Equal(t, pattern.QualityFormatOffset33, params.QualityFormat)
	assert.Equal(t, NominalInstantiate(c.AlignmentMaxError, 100), params.NominalError)
}

func TestPEParamsResolvesOrientationsAndLayouts(t *testing.T) {
	c := Default()
	c.PairedEndSearch = true
	c.MinTemplateLength = 0
	c.MaxTemplateLength = 500
	c.PairOrientation = []string{"FR", "RF"}
	c.PairLayout = []string{"separate"}
	c.PairDiscordantSearch = "never"

	params := c.PEParams(100, 100, nil)
	assert.True(t, params.Orientations[pe.FR])
	assert.True(t, params.Orientations[pe.RF])
	assert.False(t, params.Orientations[pe.FF])
	assert.True(t, params.Layouts[pe.Separate])
	assert.Equal(t, pe.DiscordantNever, params.Discordant)
}
