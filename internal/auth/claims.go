package auth

// VerifiedClaims holds identity assertions extracted from a verified ID
// token. Instances are produced only by the OIDC adapter after signature
// and issuer checks; nothing else constructs them from request input.
// Optional claims are empty when the provider did not assert them.
type VerifiedClaims struct {
	Sub               string `json:"sub"`
	Iss               string `json:"iss"`
	Email             string `json:"email"`
	EPPN              string `json:"eppn,omitempty"`
	EPTID             string `json:"eptid,omitempty"`
	GivenName         string `json:"given_name,omitempty"`
	FamilyName        string `json:"family_name,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}
