package service

import "strings"

var RequiredPermissions = []string{
	"btcpay.store.canviewinvoices",
	"btcpay.store.cancreateinvoice",
	"btcpay.store.canviewstoresettings",
	"btcpay.store.canmodifyinvoices",
}

var OptionalPermissions = []string{
	"btcpay.store.cancreatepullpayments",
	"btcpay.store.webhooks.canmodifywebhooks",
}

const (
	PermissionRefunds  = "btcpay.store.cancreatepullpayments"
	PermissionWebhooks = "btcpay.store.webhooks.canmodifywebhooks"
)

// ScopeValidator checks a grant of "permission:store" entries. It keeps no
// state beyond its input.
type ScopeValidator struct {
	grant    []string
	required map[string]struct{}
	optional map[string]struct{}
}

func NewScopeValidator(grant []string) *ScopeValidator {
	return NewScopeValidatorWith(grant, RequiredPermissions, OptionalPermissions)
}

func NewScopeValidatorWith(grant, required, optional []string) *ScopeValidator {
	return &ScopeValidator{
		grant:    grant,
		required: toSet(required),
		optional: toSet(optional),
	}
}

// ExtractStoreID returns the store shared by every entry.
func (v *ScopeValidator) ExtractStoreID() (string, error) {
	if len(v.grant) == 0 {
		return "", &ScopeError{Kind: ScopeIncompleteGrant}
	}

	storeID := ""
	for _, entry := range v.grant {
		_, store, err := splitPermission(entry)
		if err != nil {
			return "", err
		}
		if storeID == "" {
			storeID = store
			continue
		}
		if store != storeID {
			return "", &ScopeError{Kind: ScopeMultiStore, Permission: entry}
		}
	}
	return storeID, nil
}

func (v *ScopeValidator) HasSingleStore() bool {
	_, err := v.ExtractStoreID()
	return err == nil
}

// HasRequiredPermissions is true only when the granted names, less the
// optional ones, equal the required set exactly.
func (v *ScopeValidator) HasRequiredPermissions() bool {
	granted := make(map[string]struct{})
	for _, name := range v.names() {
		if _, ok := v.optional[name]; ok {
			continue
		}
		granted[name] = struct{}{}
	}

	if len(granted) != len(v.required) {
		return false
	}
	for name := range granted {
		if _, ok := v.required[name]; !ok {
			return false
		}
	}
	return true
}

func (v *ScopeValidator) HasOptionalPermission(name string) bool {
	for _, n := range v.names() {
		if n == name {
			return true
		}
	}
	return false
}

func (v *ScopeValidator) HasRefundsPermission() bool {
	return v.HasOptionalPermission(PermissionRefunds)
}

func (v *ScopeValidator) HasWebhookPermission() bool {
	return v.HasOptionalPermission(PermissionWebhooks)
}

// Validate runs both checks and returns the store id on success.
func (v *ScopeValidator) Validate() (string, error) {
	storeID, err := v.ExtractStoreID()
	if err != nil {
		return "", err
	}
	if !v.HasRequiredPermissions() {
		return "", &ScopeError{Kind: ScopeIncompleteGrant}
	}
	return storeID, nil
}

func (v *ScopeValidator) names() []string {
	names := make([]string, 0, len(v.grant))
	for _, entry := range v.grant {
		name, _, _ := strings.Cut(entry, ":")
		names = append(names, name)
	}
	return names
}

func splitPermission(entry string) (string, string, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &ScopeError{Kind: ScopeMalformed, Permission: entry}
	}
	return parts[0], parts[1], nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
