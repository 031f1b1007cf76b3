package policy

import "context"

// sandboxCtxKey is an unexported type so no other package can collide with
// this context key, following the standard library's context-key idiom.
type sandboxCtxKey struct{}

// WithSandbox attaches the active run's Sandbox to ctx so built-in tools —
// whose Execute(ctx, args) signature carries no sandbox parameter — can read
// back the FS allow-prefixes and exec allow-list governing the current call.
// The executor loop sets this once per runAgent/delegate invocation.
func WithSandbox(ctx context.Context, s Sandbox) context.Context {
	return context.WithValue(ctx, sandboxCtxKey{}, s)
}

// SandboxFromContext returns the Sandbox attached by WithSandbox, or the
// zero value (no FS restriction beyond the ".." check, an empty exec
// allow-list, allow-all tool policy) if none was attached — which only
// happens in tests that call a tool directly.
func SandboxFromContext(ctx context.Context) Sandbox {
	s, _ := ctx.Value(sandboxCtxKey{}).(Sandbox)
	return s
}
