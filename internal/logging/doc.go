// Package logging provides file-based JSON logging with rotation for the
// fusion engine. The MCP server always writes its logs to
// ~/.patentfusion/logs/ and never to stdout or stderr.
//
// The --debug flag lowers the log level to debug; without it the level
// comes from the server's configured log level.
package logging
