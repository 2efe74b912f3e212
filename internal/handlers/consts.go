package handlers

const (
	AuthorizationKey    = "Authorization"
	BearerPrefix        = "Bearer "
	ContentType         = "Content-Type"
	ApplicationJSONType = "application/json"
)

type key string

const (
	claimsKey key = "claimsKey"
)
