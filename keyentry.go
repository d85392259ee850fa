package secrets

// KeyEntry is bookkeeping for the crypto helper façade (§3, §4.5): the key
// material itself lives as an ordinary secret; only its identity — which
// crypto plugin and which storage plugin back it — is catalogued here,
// keyed by (CollectionName, KeyName).
type KeyEntry struct {
	CollectionName    string
	KeyName           string
	CryptoPluginName  string
	StoragePluginName string
}

// ID returns the composite identifier used to address this entry through
// the crypto helper surface's key_entry_identifiers/key_entry(id) methods.
func (k KeyEntry) ID() string {
	return k.CollectionName + "/" + k.KeyName
}
