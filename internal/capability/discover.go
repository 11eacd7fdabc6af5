package capability

// EndpointDecl is one statically-declared capability endpoint a plugin
// exposes. Go has no method-attribute reflection equivalent to the
// dynamic language's decorator-based discovery the spec describes, so
// plugins built in this proxy list their endpoints in a table of
// EndpointDecl values passed to RegisterAll instead of being scanned —
// same registration-time behavior (name, owner, force, {plugin-id}
// expansion), without runtime reflection.
type EndpointDecl struct {
	TopLevel    string
	SubName     string // may contain "{plugin-id}"
	Description string
	Scope       Scope
	Force       bool
	Fn          Callable
}

// RegisterAll adds every declared endpoint for pluginID's topLevel
// namespace, expanding {plugin-id} placeholders in sub-names. Endpoints
// registered this way are owned by pluginID, exactly as if they had been
// discovered by scanning the instance.
func (r *Registry) RegisterAll(topLevel, pluginID string, decls []EndpointDecl) error {
	for _, d := range decls {
		sub := ExpandPlaceholder(d.SubName, pluginID)
		if err := r.Add(topLevel, sub, pluginID, d.Description, d.Scope, d.Fn, d.Force); err != nil {
			return err
		}
	}
	return nil
}
