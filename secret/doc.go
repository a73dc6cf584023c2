// Package secret resolves secret-bearing configuration values such as the
// VAPID private key and the JWT signing secrets.
//
// A value is first expanded against the environment (see ExpandEnvStrict),
// then any reference of the form secretref:<provider>:<ref> is replaced by
// the provider's answer:
//
//	secretref:env:VAPID_PRIVATE_KEY
//	secretref:file:jwt-access.key
//
// The env and file providers are registered on DefaultRegistry.
package secret
