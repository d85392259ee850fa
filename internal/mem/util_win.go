//go:build windows
// +build windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// VirtualLock could pin the cache's pages here; until then we settle
	// for zeroing on eviction without a swap guarantee.
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
