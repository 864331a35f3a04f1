// Package secretstore implements the chained secret store used on edge
// devices.
//
// A chain is a linked sequence of Store layers, ordered from the layer
// closest to the caller (usually in-memory) to the source of truth (usually
// the remote cloud authority):
//
//	memory -> file -> remote
//
// Every layer is the same decorator, a Store, with a different Medium
// plugged in. A Store with an inner store is a cache layer; a Store without
// one is the chain's source of truth.
//
// # Retrieval and cache-fill
//
// A lookup first asks the layer's own medium. On a miss it is delegated to
// the inner store, and whatever the inner store returns is written into this
// layer's medium before being handed back. Deeper layers therefore populate
// shallower ones on the way out, so the next lookup for the same secret is
// served closer to the caller:
//
//	client := secretmanager.New(
//	    secretstore.NewInMemoryStore(
//	        secretstore.WithInner(secretstore.NewFileStore("/var/lib/edgesecrets/secrets.json",
//	            secretstore.WithKeyProvider(localKeys, "device-key"),
//	            secretstore.WithInner(secretstore.NewRemoteStore(channel)),
//	        )),
//	    ),
//	)
//
// Setting forceRetrieve skips the local lookup in every cache layer and goes
// straight to the source of truth, refreshing each layer on the way back.
//
// # Encryption
//
// Encryption is layer-local. A layer configured with a keyops.Provider
// encrypts values before they reach its medium and decrypts them on the way
// out. Values passed between layers, and to and from callers, are always
// plaintext, so every layer may use its own key. Empty values are never
// encrypted.
//
// # Errors
//
// Not-found is a nil secret with a nil error at every layer. Errors from a
// medium (disk I/O, transport sends) and keyops.ErrPayloadTooLarge are
// returned to the caller. Other cache-fill failures are logged and dropped:
// a retrieval does not depend on the fill succeeding.
//
// The remote medium never reports timeouts or cancellation as errors; it
// returns an empty result instead.
package secretstore
