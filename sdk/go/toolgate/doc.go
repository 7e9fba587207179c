// Package toolgate provides in-process access to the trust gateway for
// Go agent frameworks. It wires the identity store, session authority,
// authorization engine, audit chain, and tool registry into a single
// client, so an embedding process gets the same guarantees as the MCP
// server without a subprocess.
//
// Usage:
//
//	tg, err := toolgate.New(toolgate.WithDataDir("/var/lib/toolgate"))
//	token, err := tg.Login(ctx, "alice", password)
//	resp, err := tg.Invoke(ctx, token, "read_file", map[string]string{
//	    "path": "/home/alice/notes.txt",
//	})
//
// High-sensitivity invocations come back with StatusConfirmation and a
// challenge id; resolve them with Confirm and the exact phrase.
// External users import github.com/pkamenev/toolgate/sdk/go/toolgate.
package toolgate
