// Package metrics defines the Prometheus collectors exported by the media
// engine. Collectors are registered via promauto at package init and updated
// inline by the components that own them.
package metrics
