package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedSuffixMatches(t *testing.T) {
	s := AllowedSuffix("example.com")
	assert.True(t, s.matches("example.com."))
	assert.True(t, s.matches("foo.example.com."))
	assert.False(t, s.matches("notexample.com."))
	assert.False(t, s.matches("example.org."))
}

func TestEmptyAllowedSuffixMatchesEverything(t *testing.T) {
	s := AllowedSuffix("")
	assert.True(t, s.matches("anything.at.all."))
}

func TestFilteringResolverPermittedWithNoAllowList(t *testing.T) {
	r := &FilteringResolver{}
	assert.True(t, r.permitted("anything.example."))
}

func TestFilteringResolverPermittedRespectsAllowList(t *testing.T) {
	r := &FilteringResolver{Allow: []AllowedSuffix{"nymvpn.com"}}
	assert.True(t, r.permitted("gateways.nymvpn.com."))
	assert.False(t, r.permitted("evil.example."))
}
