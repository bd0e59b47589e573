package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantFor(store string, names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n+":"+store)
	}
	return out
}

func TestScopeValidatorAcceptsRequiredSet(t *testing.T) {
	v := NewScopeValidator(grantFor("S1", RequiredPermissions...))

	storeID, err := v.Validate()
	require.NoError(t, err)
	assert.Equal(t, "S1", storeID)
	assert.True(t, v.HasSingleStore())
	assert.False(t, v.HasRefundsPermission())
	assert.False(t, v.HasWebhookPermission())
}

func TestScopeValidatorOptionalPermissions(t *testing.T) {
	names := append(append([]string{}, RequiredPermissions...), OptionalPermissions...)
	v := NewScopeValidator(grantFor("S1", names...))

	storeID, err := v.Validate()
	require.NoError(t, err)
	assert.Equal(t, "S1", storeID)
	assert.True(t, v.HasRefundsPermission())
	assert.True(t, v.HasWebhookPermission())
}

func TestScopeValidatorRejects(t *testing.T) {
	missing := grantFor("S1", RequiredPermissions[:3]...)
	extra := grantFor("S1", append(append([]string{}, RequiredPermissions...), "btcpay.store.canmodifystoresettings")...)
	multi := append(grantFor("S1", RequiredPermissions[:2]...), grantFor("S2", RequiredPermissions[2:]...)...)

	tests := []struct {
		name  string
		grant []string
		kind  ScopeErrorKind
	}{
		{"empty grant", nil, ScopeIncompleteGrant},
		{"missing permission", missing, ScopeIncompleteGrant},
		{"unexpected extra permission", extra, ScopeIncompleteGrant},
		{"two stores", multi, ScopeMultiStore},
		{"no store part", []string{"btcpay.store.canviewinvoices"}, ScopeMalformed},
		{"too many parts", []string{"btcpay.store.canviewinvoices:S1:x"}, ScopeMalformed},
		{"empty store", []string{"btcpay.store.canviewinvoices:"}, ScopeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScopeValidator(tt.grant).Validate()
			var scopeErr *ScopeError
			require.True(t, errors.As(err, &scopeErr), "got %v", err)
			assert.Equal(t, tt.kind, scopeErr.Kind)
		})
	}
}

func TestScopeValidatorStoreExtraction(t *testing.T) {
	v := NewScopeValidator([]string{"a:S1", "b:S1"})
	storeID, err := v.ExtractStoreID()
	require.NoError(t, err)
	assert.Equal(t, "S1", storeID)

	v = NewScopeValidator([]string{"a:S1", "b:S2"})
	assert.False(t, v.HasSingleStore())
}

func TestScopeValidatorCustomSets(t *testing.T) {
	v := NewScopeValidatorWith([]string{"read:S1", "extra:S1"}, []string{"read"}, []string{"extra"})
	assert.True(t, v.HasRequiredPermissions())
	assert.True(t, v.HasOptionalPermission("extra"))
	assert.False(t, v.HasOptionalPermission("write"))
}
