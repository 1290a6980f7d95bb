package config

// IdentityProviderConfig describes the external OIDC identity provider used
// for shopper and bookseller accounts. Admin accounts never touch it.
type IdentityProviderConfig interface {
	GetIdentityIssuerURL() string
	GetIdentityClientID() string
	GetIdentityClientSecret() string
	GetIdentityRedirectURL() string
}

type IdentityProvider struct{}

var _ IdentityProviderConfig = IdentityProvider{}

func (IdentityProvider) GetIdentityIssuerURL() string {
	return GetEnv("IDP_ISSUER_URL", "http://localhost:9091")
}

func (IdentityProvider) GetIdentityClientID() string {
	return GetEnv("IDP_CLIENT_ID", "bookstore-storefront")
}

func (IdentityProvider) GetIdentityClientSecret() string {
	return GetEnv("IDP_CLIENT_SECRET", "")
}

func (IdentityProvider) GetIdentityRedirectURL() string {
	return GetEnv("IDP_REDIRECT_URL", "http://localhost:8080/auth/callback")
}
