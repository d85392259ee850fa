// Package secrets defines the data model and error taxonomy shared by the
// secretsd daemon's request queue, request processor, catalogue, and plugin
// interfaces.
//
// secretsd is a long-running privileged daemon that stores application
// secrets and, by delegation, performs cryptographic operations on behalf
// of client processes. Clients talk to it over a local IPC channel (the
// framing of that channel is an external collaborator — see package ipc);
// the daemon itself owns a master catalogue database and dispatches
// storage and encryption work to pluggable backends (see package plugin).
//
// Basic shape, as cmd/secretsd wires it (q is an internal/queue.Queue
// running a processor.Processor's Handle, conn an ipc.Connection):
//
//	f := api.New(q)
//	err := f.SetCollectionSecret(ctx, conn, &secrets.SetCollectionSecretRequest{
//	    CollectionName: "kv",
//	    SecretName:     "api-key",
//	    Data:           []byte("s3cr3t"),
//	})
package secrets
