package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Set, get and delete secrets within a collection",
}

var setSecretCmd = &cobra.Command{
	Use:   "set [collection] [name]",
	Short: "Store a secret in a collection",
	Args:  cobra.ExactArgs(2),
	RunE:  setSecret,
}

var getSecretCmd = &cobra.Command{
	Use:   "get [collection] [name]",
	Short: "Read a secret from a collection",
	Args:  cobra.ExactArgs(2),
	RunE:  getSecret,
}

var deleteSecretCmd = &cobra.Command{
	Use:   "delete [collection] [name]",
	Short: "Remove a secret from a collection",
	Args:  cobra.ExactArgs(2),
	RunE:  deleteSecret,
}

var (
	secretOwner string
	secretFile  string
	secretData  string
)

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(setSecretCmd)
	secretCmd.AddCommand(getSecretCmd)
	secretCmd.AddCommand(deleteSecretCmd)

	setSecretCmd.Flags().StringVar(&secretOwner, "owner", "", "owning application id")
	setSecretCmd.Flags().StringVar(&secretFile, "file", "", "read secret data from file (use '-' for stdin)")
	setSecretCmd.Flags().StringVar(&secretData, "data", "", "secret data as a string")
}

func readSecretData() ([]byte, error) {
	if secretData != "" {
		return []byte(secretData), nil
	}
	if secretFile != "" {
		if secretFile == "-" {
			return io.ReadAll(os.Stdin)
		}
		return os.ReadFile(secretFile)
	}
	return io.ReadAll(os.Stdin)
}

func setSecret(cmd *cobra.Command, args []string) error {
	data, err := readSecretData()
	if err != nil {
		return fmt.Errorf("read secret data: %w", err)
	}

	req := &secrets.SetCollectionSecretRequest{
		CollectionName:     args[0],
		SecretName:         args[1],
		Data:               data,
		OwnerApplicationID: secretOwner,
		UIMode:             secrets.NoUserInteraction,
	}
	if err := checkResult(call("SetSecret", req)); err != nil {
		return fmt.Errorf("set secret: %w", err)
	}
	fmt.Printf("secret %q stored in collection %q\n", args[1], args[0])
	return nil
}

func getSecret(cmd *cobra.Command, args []string) error {
	req := &secrets.GetCollectionSecretRequest{
		CollectionName: args[0],
		SecretName:     args[1],
		UIMode:         secrets.NoUserInteraction,
	}
	reply, err := call("GetSecret", req)
	if err != nil {
		return err
	}
	if !reply.Result.Ok() {
		return fmt.Errorf("get secret: %w", reply.Result.Err())
	}

	out := reply.Params.(*secrets.GetCollectionSecretRequest)
	os.Stdout.Write(out.Data)
	if len(out.Data) == 0 || out.Data[len(out.Data)-1] != '\n' {
		fmt.Println()
	}
	return nil
}

func deleteSecret(cmd *cobra.Command, args []string) error {
	req := &secrets.DeleteCollectionSecretRequest{
		CollectionName: args[0],
		SecretName:     args[1],
		UIMode:         secrets.NoUserInteraction,
	}
	if err := checkResult(call("DeleteSecret", req)); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	fmt.Printf("secret %q removed from collection %q\n", args[1], args[0])
	return nil
}
