package billing

import (
	"strings"

	"github.com/voicequote/meterd/pkg/accounts"
)

// PlanMapper maps a provider price or product id to a plan
type PlanMapper struct {
	BusinessID string
}

// Map returns business for the configured business id and pro otherwise.
// An unset business id never matches.
func (m PlanMapper) Map(id string) accounts.Plan {
	id = strings.TrimSpace(id)
	if m.BusinessID != "" && id == m.BusinessID {
		return accounts.PlanBusiness
	}
	return accounts.PlanPro
}
