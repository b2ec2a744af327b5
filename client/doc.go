// Package client issues signed calls to the entity API. Each call is JSON-encoded,
// signed with a fresh timestamp and nonce (see package hmac), and its response envelope
// decoded.
//
// Example usage:
//
//	c, err := client.NewClient(client.Config{
//		BaseURL:   "https://api.example.com",
//		AppId:     "test_app_001",
//		AppSecret: os.Getenv("OPENAPI_APP_SECRET"),
//	})
//	if err != nil {
//		return err
//	}
//	res, err := c.List(ctx, "product", client.ListParams{Page: 1, PageSize: 10})
package client
