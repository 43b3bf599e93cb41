package domain

import "time"

type ProviderType string

const (
	ProviderGoogle     ProviderType = "google"
	ProviderFacebook   ProviderType = "facebook"
	ProviderTrustpilot ProviderType = "trustpilot"
)

// ReviewSource is one monitored profile on an external review platform.
// (brand_id, provider, profile_id) is unique among non-retired sources.
type ReviewSource struct {
	ID            int64
	BrandID       int64
	Provider      ProviderType
	ProfileID     string // id of the profile at the provider
	CredentialRef *string
	Active        bool
	Retired       bool
	LastSyncState *string
	LastSyncAt    *time.Time
	NextSyncAt    *time.Time
}
