package dom

import (
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog/log"
)

// selectorCache memoizes compiled selectors. Selector strings repeat
// heavily across trigger bindings and chain nodes.
var selectorCache sync.Map // string -> cascadia.Selector

// compileSelector compiles a CSS selector, caching the result. Invalid
// selectors log a warning and report false so lookups degrade to
// no matches instead of failing the caller.
func compileSelector(sel string) (cascadia.Selector, bool) {
	if cached, ok := selectorCache.Load(sel); ok {
		if cached == nil {
			return nil, false
		}
		return cached.(cascadia.Selector), true
	}
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		log.Warn().Err(err).Str("selector", sel).Msg("invalid CSS selector")
		selectorCache.Store(sel, nil)
		return nil, false
	}
	selectorCache.Store(sel, compiled)
	return compiled, true
}
