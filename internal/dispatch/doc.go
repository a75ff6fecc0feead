// Package dispatch implements the command registry and the dispatch
// lifecycle for Conductor.
//
// A command is a named callback registered under a "--" prefixed name.
// Raw command strings combine the name with colon-separated parameters,
// for example "--attr:aria-label:Close". Dispatch resolves the raw
// string against the registry, builds an interpolation context from the
// invoker, target, and event, executes the callback against every
// resolved target, and finally runs the chaining engine.
//
// # Command Names
//
// Names are normalized before registration: surrounding whitespace is
// trimmed and a missing "--" prefix is added with a warning. Names
// auto-prefixed this way are checked against the reserved native
// keywords (show-modal, close, toggle-popover, and friends) so a custom
// command can never shadow built-in browser behavior. Explicitly
// prefixed names like "--close" are always permitted.
//
// # Lookup
//
// Raw strings resolve longest-name-first: "--attr:href:/x" matches a
// registered "--attr" only at a parameter boundary, so a registered
// "--at" never steals the dispatch. The remainder after the matched
// name splits into parameters on top-level colons; colons inside
// {{ ... }} placeholders or escaped with a backslash do not split.
//
// # Lifecycle
//
//	rate gate -> lookup -> target resolution -> context build ->
//	per target: before-validation -> validation -> after-validation ->
//	            state gate -> callback (bounded by timeout) ->
//	            on-success|on-error -> on-complete -> after-command
//	-> chaining -> completed event
//
// Excess dispatches inside the rolling one-second window are dropped as
// silent no-ops. Unknown commands log a diagnostic with near-name
// suggestions and the head of the registry, and never panic the caller
// outside test mode.
//
// # Chaining
//
// Two declarative chaining forms run after a command settles, in this
// order:
//
//  1. Invoker attributes: data-and-then (consumed on first read),
//     data-after-success or data-after-error depending on the outcome,
//     then data-after-complete. Each holds a comma-separated command
//     list.
//  2. <and-then> child nodes of the invoker, walked in document order.
//     A node declares command, optional target, data-condition
//     (success, error, or the default always), data-delay in
//     milliseconds, and data-once for self-removal after one run.
//
// Chained dispatches run at depth+1 and the walk stops at the
// configured depth cap. A failing command still runs its error-path
// chain, and the original error is preserved.
//
// # States
//
// A per-(command, target) state map gates execution: disabled and
// completed skip the callback, once runs it a single time and then
// flips to completed. Chain nodes track their own lifecycle in their
// data-state attribute instead.
//
// # Middleware and Plugins
//
// Middleware attaches to named lifecycle hooks. The three gating hooks
// (before-command, before-validation, after-validation) abort the
// dispatch when they return an error; the observing hooks (on-success,
// on-error, on-complete, after-command) have their errors logged and
// ignored. A Plugin bundles commands and hook middleware under one name
// and unregisters symmetrically.
//
// # Example Usage
//
//	m := dispatch.NewManager(dispatch.Config{})
//	m.SetDocument(doc)
//
//	m.Register("--greet", func(ctx context.Context, ec *dispatch.ExecContext) error {
//		ec.Target.SetText("hello, " + ec.ParamOr(0, "world"))
//		return nil
//	})
//
//	res, err := m.Dispatch(ctx, dispatch.Request{
//		Raw:            "--greet:conductor",
//		TargetSelector: "#out",
//	})
//
// Managers are instance-scoped. Construct one per engine and share
// nothing; Reset clears the registry, states, middleware, and plugins
// for test isolation.
package dispatch
