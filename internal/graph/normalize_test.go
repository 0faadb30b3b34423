package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corenexus/memory-service/internal/model"
)

func TestNormalize_LowercasesAndCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "jane doe", normalize(model.EntityPerson, "  Jane   Doe  "))
}

func TestNormalize_StripsPunctuation(t *testing.T) {
	require.Equal(t, "acme corp", normalize(model.EntityOther, "Acme, Corp."))
}

func TestNormalize_DropsOrganizationSuffixes(t *testing.T) {
	require.Equal(t, "acme", normalize(model.EntityOrganization, "Acme Inc"))
	require.Equal(t, "acme", normalize(model.EntityOrganization, "Acme LLC"))
	require.Equal(t, "acme", normalize(model.EntityOrganization, "Acme Corp"))
}

func TestNormalize_CollapsesTechnologySpacing(t *testing.T) {
	require.Equal(t, "googlecloud", normalize(model.EntityTechnology, "Google Cloud"))
}

func TestNormalizer_CachesResultAcrossCalls(t *testing.T) {
	n, err := newNormalizer(1024)
	require.NoError(t, err)

	first := n.normalize(model.EntityPerson, "Jane Doe")
	second := n.normalize(model.EntityPerson, "Jane Doe")
	require.Equal(t, first, second)
	require.Equal(t, "jane doe", first)
}

func TestNormalizer_DistinguishesByEntityType(t *testing.T) {
	n, err := newNormalizer(1024)
	require.NoError(t, err)

	person := n.normalize(model.EntityPerson, "Google Cloud")
	tech := n.normalize(model.EntityTechnology, "Google Cloud")
	require.NotEqual(t, person, tech)
}
