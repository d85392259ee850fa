package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

var standaloneCmd = &cobra.Command{
	Use:   "standalone",
	Short: "Set, get and delete secrets outside any collection",
}

var setStandaloneSecretCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Store a standalone secret under the device-lock key",
	Args:  cobra.ExactArgs(1),
	RunE:  setStandaloneSecret,
}

var getStandaloneSecretCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Read a standalone secret",
	Args:  cobra.ExactArgs(1),
	RunE:  getStandaloneSecret,
}

var deleteStandaloneSecretCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a standalone secret",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteStandaloneSecret,
}

func init() {
	rootCmd.AddCommand(standaloneCmd)
	standaloneCmd.AddCommand(setStandaloneSecretCmd)
	standaloneCmd.AddCommand(getStandaloneSecretCmd)
	standaloneCmd.AddCommand(deleteStandaloneSecretCmd)

	setStandaloneSecretCmd.Flags().StringVar(&secretOwner, "owner", "", "owning application id")
	setStandaloneSecretCmd.Flags().StringVar(&secretStorage, "storage", "fs", "storage plugin name")
	setStandaloneSecretCmd.Flags().StringVar(&secretEncryption, "encryption", "aescbc", "encryption plugin name")
	setStandaloneSecretCmd.Flags().StringVar(&secretFile, "file", "", "read secret data from file (use '-' for stdin)")
	setStandaloneSecretCmd.Flags().StringVar(&secretData, "data", "", "secret data as a string")
}

var (
	secretStorage    string
	secretEncryption string
)

func setStandaloneSecret(cmd *cobra.Command, args []string) error {
	data, err := readSecretData()
	if err != nil {
		return fmt.Errorf("read secret data: %w", err)
	}

	req := &secrets.SetStandaloneDeviceLockSecretRequest{
		SecretName:         args[0],
		Data:               data,
		OwnerApplicationID: secretOwner,
		StoragePlugin:      secretStorage,
		EncryptionPlugin:   secretEncryption,
		UnlockSemantic:     secrets.DeviceLockKeepUnlocked,
		AccessControlMode:  secrets.OwnerOnly,
		UIMode:             secrets.NoUserInteraction,
	}
	if err := checkResult(call("SetSecret", req)); err != nil {
		return fmt.Errorf("set standalone secret: %w", err)
	}
	fmt.Printf("standalone secret %q stored\n", args[0])
	return nil
}

func getStandaloneSecret(cmd *cobra.Command, args []string) error {
	req := &secrets.GetStandaloneSecretRequest{
		SecretName: args[0],
		UIMode:     secrets.NoUserInteraction,
	}
	reply, err := call("GetSecret", req)
	if err != nil {
		return err
	}
	if !reply.Result.Ok() {
		return fmt.Errorf("get standalone secret: %w", reply.Result.Err())
	}

	out := reply.Params.(*secrets.GetStandaloneSecretRequest)
	os.Stdout.Write(out.Data)
	if len(out.Data) == 0 || out.Data[len(out.Data)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

func deleteStandaloneSecret(cmd *cobra.Command, args []string) error {
	req := &secrets.DeleteStandaloneSecretRequest{
		SecretName: args[0],
	}
	if err := checkResult(call("DeleteSecret", req)); err != nil {
		return fmt.Errorf("delete standalone secret: %w", err)
	}
	fmt.Printf("standalone secret %q removed\n", args[0])
	return nil
}
