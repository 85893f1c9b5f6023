package storage

import "net/url"

// Key namespaces. Client ids are path-escaped so an id containing "/"
// cannot reach into another tenant's range.
const (
	blobPrefix     = "blob/"
	registryPrefix = "registry/"
	contactPrefix  = "contact/"
)

func blobKeyPrefix(clientID string) []byte {
	return []byte(blobPrefix + url.PathEscape(clientID) + "/")
}

func blobObjectKey(clientID, objectID string) []byte {
	return append(blobKeyPrefix(clientID), objectID...)
}

func registryKey(clientID string) []byte {
	return []byte(registryPrefix + url.PathEscape(clientID))
}

func contactKeyPrefix(clientID string) []byte {
	return []byte(contactPrefix + url.PathEscape(clientID) + "/")
}

func contactKey(clientID, peer string) []byte {
	return append(contactKeyPrefix(clientID), url.PathEscape(peer)...)
}
