// Package infra contains technical adapters such as the websocket hub,
// the MQTT ingestor, stores and metrics exporters. These packages should
// depend only on the interfaces defined in the core packages.
package infra
