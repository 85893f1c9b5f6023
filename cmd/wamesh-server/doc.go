// Package main provides the entry point for wamesh-server.
//
// wamesh-server keeps one messaging session per tenant alive, restores
// every registered tenant on boot and serves health and metrics on an
// admin listener.
//
// Usage:
//
//	wamesh-server run --config /etc/wamesh/config.yaml
//	wamesh-server registry list
//	wamesh-server registry contacts <client-id>
//	wamesh-server registry purge <client-id>
//	wamesh-server backup <file>
//	wamesh-server version
//
// Every setting can be overridden through WAMESH_ environment variables,
// with "__" separating sections: WAMESH_SESSION__WAIT_TIMEOUT=30s.
package main
