// Package fakes provides test doubles for the SDK clients used by edgesecrets
// key providers and delivery sources.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior, and are safe for concurrent use because the delivery
// responder fetches secrets from several goroutines.
//
// Usage:
//
//	fake := fakes.NewFakeAzureSecretsClient()
//	fake.AddSecretString("db-password", "hunter2")
//	src, _ := sources.NewAzureKeyVault("vault", cfg, logger, sources.WithAzureSecretsClient(fake))
//	// Exercise src.Get...
package fakes
