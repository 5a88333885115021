/*
Package client is a Go client for the burrow HTTP API. The CLI uses it when
a command is pointed at a running server with --server.

	c, err := client.NewClient("127.0.0.1:8080")
	opID, err := c.Save(ctx, path, obj, schema, types.Options{})
	res, err := c.Get(ctx, scope, schema, types.Options{Where: &types.Where{...}})

Non-2xx answers are returned as *Error carrying the status code and, for
validation failures, the offending field.
*/
package client
