package authorization_test

import (
	"testing"

	"github.com/nasermirzaei89/commentbox/authorization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	policy, err := authorization.ParsePolicy(`# guests
g, system:anonymous, system:unauthenticated

p, system:unauthenticated, discuss, *, listComments
p,system:manager,discuss,-,moderate
`)
	require.NoError(t, err)

	assert.Equal(t, []authorization.Grouping{
		{Subject: "system:anonymous", Group: "system:unauthenticated"},
	}, policy.Groupings)

	assert.Equal(t, []authorization.Rule{
		{Subject: "system:unauthenticated", Domain: "discuss", Object: "*", Action: "listComments"},
		{Subject: "system:manager", Domain: "discuss", Object: "", Action: "moderate"},
	}, policy.Rules)
}

func TestParsePolicyErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		_, err := authorization.ParsePolicy("p, a, b, c, d\nx, a, b\n")

		var unknownErr *authorization.UnknownPolicyTypeError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "x", unknownErr.PolicyType)
		assert.Equal(t, 2, unknownErr.Line)
	})

	t.Run("short rule", func(t *testing.T) {
		t.Parallel()

		_, err := authorization.ParsePolicy("p, a, b, c\n")

		var malformedErr *authorization.MalformedPolicyError
		require.ErrorAs(t, err, &malformedErr)
		assert.Equal(t, 1, malformedErr.Line)
	})

	t.Run("long grouping", func(t *testing.T) {
		t.Parallel()

		_, err := authorization.ParsePolicy("g, a, b, c\n")

		var malformedErr *authorization.MalformedPolicyError
		require.ErrorAs(t, err, &malformedErr)
	})
}
