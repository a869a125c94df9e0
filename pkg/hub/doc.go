// Package hub defines the contract of a topichub node.
//
// A node owns one routing table and one delivery dispatcher and accepts the
// three commands of the command feed:
//   - Subscribe(pattern, subscriberId): register interest in a pattern
//   - Unsubscribe(pattern, subscriberId): remove it again
//   - Publish(topic, payload): resolve the topic and fan the payload out
//
// Commands arrive either as typed calls (Subscribe, Publish, ...) or as a
// Command value through Apply, which is what the transports use.
//
// Endpoints are the receiving side. Connect registers a channel endpoint for
// a subscriber ID; messages for subscribers without an endpoint go to the
// node's fallback sink, if one was configured.
//
// Architecture:
//  1. A transport (HTTP, gRPC command feed) turns a request into a Command
//  2. The node validates the topic and resolves subscribers through the trie
//  3. The message is stamped with a sequence number and handed to the
//     dispatcher, which queues it per subscriber and returns immediately
//  4. Each subscriber's pump delivers to its endpoint or the fallback sink
package hub
