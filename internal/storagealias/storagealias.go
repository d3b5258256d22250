// Package storagealias resolves a data hub's own storage_alias (the
// identity carried on wire events and DrsObject/FileMetadata records) to
// the distinct alias its permanent or outbox bucket is configured under.
// Each hub's inbox, permanent and outbox buckets live at potentially
// different endpoints and credentials but share one alias namespace keyed
// by a fixed suffix convention: "{hub}-inbox", "{hub}-permanent",
// "{hub}-outbox" — matching the naming the example event-sourcing fixtures
// (storage_alias="test", bucket="test-inbox"/"test-outbox") already use.
package storagealias

// Resolver implements IFRS's aliasResolver and DCS's aliasResolver against
// one shared set of configured storage aliases: a hub alias resolves only
// if its suffixed counterpart was actually configured for this
// deployment, so an operator who never set up a hub's permanent or outbox
// bucket gets UnknownStorageAlias instead of a silent misroute.
type Resolver struct {
	configured map[string]struct{}
}

// NewResolver builds a Resolver from the set of storage alias names this
// deployment has configured (the keys of serviceconfig.Config's
// StorageAliases map).
func NewResolver(configuredAliases map[string]struct{}) *Resolver {
	return &Resolver{configured: configuredAliases}
}

const (
	inboxSuffix     = "-inbox"
	permanentSuffix = "-permanent"
	outboxSuffix    = "-outbox"
)

// InboxAlias resolves hubAlias to its inbox bucket's storage alias.
func (r *Resolver) InboxAlias(hubAlias string) (string, bool) {
	return r.resolve(hubAlias, inboxSuffix)
}

// PermanentAlias resolves hubAlias to its permanent bucket's storage
// alias, satisfying IFRS's aliasResolver.
func (r *Resolver) PermanentAlias(hubAlias string) (string, bool) {
	return r.resolve(hubAlias, permanentSuffix)
}

// OutboxAlias resolves hubAlias to its outbox bucket's storage alias,
// satisfying DCS's aliasResolver.
func (r *Resolver) OutboxAlias(hubAlias string) (string, bool) {
	return r.resolve(hubAlias, outboxSuffix)
}

func (r *Resolver) resolve(hubAlias, suffix string) (string, bool) {
	alias := hubAlias + suffix
	_, ok := r.configured[alias]
	return alias, ok
}
