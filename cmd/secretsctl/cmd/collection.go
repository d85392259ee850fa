package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

var collectionCmd = &cobra.Command{
	Use:   "collection",
	Short: "Create and delete secret collections",
}

var createDeviceLockCollectionCmd = &cobra.Command{
	Use:   "create-device-lock [name]",
	Short: "Create a collection unlocked by the device-lock key",
	Args:  cobra.ExactArgs(1),
	RunE:  createDeviceLockCollection,
}

var createCustomLockCollectionCmd = &cobra.Command{
	Use:   "create-custom-lock [name]",
	Short: "Create a collection unlocked via an authentication plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  createCustomLockCollection,
}

var deleteCollectionCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a collection and everything stored under it",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteCollection,
}

var (
	collectionOwner      string
	collectionStorage    string
	collectionEncryption string
	collectionAuth       string
	collectionUIAddress  string
	collectionTimeoutMs  int64
	collectionAllowUI    bool
)

func init() {
	rootCmd.AddCommand(collectionCmd)
	collectionCmd.AddCommand(createDeviceLockCollectionCmd)
	collectionCmd.AddCommand(createCustomLockCollectionCmd)
	collectionCmd.AddCommand(deleteCollectionCmd)

	createDeviceLockCollectionCmd.Flags().StringVar(&collectionOwner, "owner", "", "owning application id")
	createDeviceLockCollectionCmd.Flags().StringVar(&collectionStorage, "storage", "fs", "storage plugin name")
	createDeviceLockCollectionCmd.Flags().StringVar(&collectionEncryption, "encryption", "aescbc", "encryption plugin name")

	createCustomLockCollectionCmd.Flags().StringVar(&collectionOwner, "owner", "", "owning application id")
	createCustomLockCollectionCmd.Flags().StringVar(&collectionStorage, "storage", "fs", "storage plugin name")
	createCustomLockCollectionCmd.Flags().StringVar(&collectionEncryption, "encryption", "aescbc", "encryption plugin name")
	createCustomLockCollectionCmd.Flags().StringVar(&collectionAuth, "auth", "devicelock", "authentication plugin name")
	createCustomLockCollectionCmd.Flags().Int64Var(&collectionTimeoutMs, "timeout-ms", 0, "relock timeout in milliseconds (CustomLockTimeoutRelock only)")
	createCustomLockCollectionCmd.Flags().BoolVar(&collectionAllowUI, "allow-ui", false, "allow the authentication plugin to prompt via the system UI")
	createCustomLockCollectionCmd.Flags().StringVar(&collectionUIAddress, "ui-address", "", "in-process UI service address (ApplicationSpecific auth plugins)")
}

func createDeviceLockCollection(cmd *cobra.Command, args []string) error {
	req := &secrets.CreateDeviceLockCollectionRequest{
		Name:               args[0],
		OwnerApplicationID: collectionOwner,
		StoragePlugin:      collectionStorage,
		EncryptionPlugin:   collectionEncryption,
		UnlockSemantic:     secrets.DeviceLockKeepUnlocked,
		AccessControlMode:  secrets.OwnerOnly,
	}
	if err := checkResult(call("CreateCollection", req)); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	fmt.Printf("collection %q created\n", args[0])
	return nil
}

func createCustomLockCollection(cmd *cobra.Command, args []string) error {
	uiMode := secrets.NoUserInteraction
	switch {
	case collectionUIAddress != "":
		uiMode = secrets.InProcessUI
	case collectionAllowUI:
		uiMode = secrets.SystemMediatedUI
	}

	unlockSemantic := secrets.CustomLockKeepUnlocked
	if collectionTimeoutMs > 0 {
		unlockSemantic = secrets.CustomLockTimeoutRelock
	}

	req := &secrets.CreateCustomLockCollectionRequest{
		Name:                args[0],
		OwnerApplicationID:  collectionOwner,
		StoragePlugin:       collectionStorage,
		EncryptionPlugin:    collectionEncryption,
		AuthPlugin:          collectionAuth,
		UnlockSemantic:      unlockSemantic,
		CustomLockTimeoutMs: collectionTimeoutMs,
		AccessControlMode:   secrets.OwnerOnly,
		UIMode:              uiMode,
		UIServiceAddress:    collectionUIAddress,
	}
	if err := checkResult(call("CreateCollection", req)); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	fmt.Printf("collection %q created\n", args[0])
	return nil
}

func deleteCollection(cmd *cobra.Command, args []string) error {
	req := &secrets.DeleteCollectionRequest{Name: args[0], UIMode: secrets.NoUserInteraction}
	if err := checkResult(call("DeleteCollection", req)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	fmt.Printf("collection %q deleted\n", args[0])
	return nil
}
