package redis

import "fmt"

const (
	// KeyPrefixService is the prefix for service document keys
	KeyPrefixService = "trimbox:service:"
	// KeyPrefixUser is the prefix for user document keys
	KeyPrefixUser = "trimbox:user:"
	// KeyPrefixSession is the prefix for session token keys
	KeyPrefixSession = "trimbox:session:"
)

// ServiceKey returns the Redis key for a service document by its
// normalized sender address.
func ServiceKey(emailID string) string {
	return KeyPrefixService + emailID
}

// UserKey returns the Redis key for a user document
func UserKey(userID string) string {
	return KeyPrefixUser + userID
}

// UserServicesKey returns the key for a user's service membership set
func UserServicesKey(userID string) string {
	return KeyPrefixUser + userID + ":services"
}

// SessionKey returns the Redis key for a session token
func SessionKey(token string) string {
	return KeyPrefixSession + token
}

// ExtractServiceID extracts the sender address from a service key
func ExtractServiceID(key string) (string, error) {
	if len(key) <= len(KeyPrefixService) {
		return "", fmt.Errorf("invalid service key: %s", key)
	}
	return key[len(KeyPrefixService):], nil
}
