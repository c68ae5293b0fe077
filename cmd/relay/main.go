// Relay is an API-compatibility gateway that exposes OpenAI- and
// Anthropic-dialect chat endpoints over a single upstream Kiro account
// pool, translating each dialect's request/response shapes to and from
// Kiro's native event-streamed wire protocol.
//
// Usage:
//
//	# Start the gateway with default configuration
//	relay run
//
//	# Start with a custom configuration file
//	relay run --config /path/to/config.yaml
//
//	# Manage upstream accounts
//	relay accounts add --name prod --refresh-token "..." --region us-east-1
//	relay accounts list
//
//	# Manage client API keys
//	relay keys create --name "my-app"
//	relay keys list
package main

func main() {
	Execute()
}
