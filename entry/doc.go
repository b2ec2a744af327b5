// Package entry implements the entry-point logic shared by the gateway and audit
// binaries, including opinionated defaults for logging and request tracing.
//
// Example usage:
//
//	func main() {
//		app := entry.NewApplication("openapi-gateway")
//		defer app.Stop()
//
//		config := Config{}
//		if err := envconfig.Process("", &config); err != nil {
//			app.Fail("Failed to load config", err)
//		}
//		app.SetLogLevel(config.LogLevel)
//
//		entry.RunServer(app, gateway.NewServer(cfg), "", 5010)
//	}
//
// Handlers obtain the request-scoped logger with entry.Logger(ctx), and may attach
// further attributes (such as the calling app's ID) with entry.Annotate.
package entry
