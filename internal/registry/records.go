package registry

// Adapter is a user's binding of a proxy gateway, a model provider, and an
// encrypted credential, exposed externally as an opaque bearer token.
type Adapter struct {
	ID          string `json:"adapter_id"`
	OwnerUserID string `json:"owner_user_id"`
	ProxyID     string `json:"proxy_id"`
	ProxyURL    string `json:"proxy_url"`
	BearerToken string `json:"bearer_token"`
	ProviderID  string `json:"provider_id"`
	ModelID     string `json:"model_id"`
	ExtraParams string `json:"extra_params,omitempty"`
	Note        string `json:"note,omitempty"`
	Available   bool   `json:"available"`
}

// adapterRecord is the user-indexed primary record.
type adapterRecord struct {
	Token    string `json:"tk"`
	ProxyID  string `json:"pid"`
	ProxyURL string `json:"pul"`
	Note     string `json:"not"`
}

// tokenRecord is the bearer-token-indexed metadata record.
type tokenRecord struct {
	UserID      string `json:"uid"`
	ProviderID  string `json:"pro"`
	ModelID     string `json:"mid"`
	ExtraParams string `json:"llm"`
}

// adapterKey builds the user-indexed primary key.
func (r *Registry) adapterKey(userID, adapterID string) string {
	return r.adapterPrefix + ":" + userID + ":" + adapterID
}

// tokenKey builds the bearer-token-indexed metadata key.
func (r *Registry) tokenKey(bearerToken string) string {
	return r.adapterPrefix + ":" + bearerToken
}

// credentialKey builds the (proxy, token)-indexed encrypted-credential key.
// Credentials are retrievable only through this pair, never by adapter ID.
func (r *Registry) credentialKey(proxyID, bearerToken string) string {
	return r.adapterPrefix + ":" + proxyID + ":" + bearerToken
}

// versionKey builds the per-user modification version counter key.
func (r *Registry) versionKey(userID string) string {
	return r.versionPrefix + ":" + userID
}
