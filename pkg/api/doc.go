/*
Package api serves the document store over HTTP/JSON.

Routes:

	PUT    /v1/docs/{path...}   save; body {"object", "schema", "options"}; 202 {"opId"}
	DELETE /v1/docs/{path...}   remove; ?index=field...; 202 {"opId"}
	GET    /v1/docs/{path...}   get; ?where=&op=&value=&order=&limit=&pageToken=&q=&index=
	GET    /v1/notices          after-task notices as newline-delimited JSON
	GET    /health, /ready      component health from metrics.Health()
	GET    /metrics             Prometheus

Validation errors map to 400, everything else to 500. Writes return once
the operation is durably appended; the views catch up asynchronously, and a
GET on the same scope observes the write.

Authentication is left to a fronting proxy. A listener started with
ReadOnly rejects every write method under /v1.
*/
package api
