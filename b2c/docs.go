/*
b2c is a package for orchestrating OIDC authentication against a tenant
which offers several policies (sign-up-sign-in, edit-profile and
reset-password), each with its own authority.

Primary types provided by the package

* Config: the tenant's immutable configuration: client id/secret, instance,
domain, the three policy ids, redirect URL, downstream API URL and scopes.
Authority(policy) returns {instance}/{domain}/{policy}/v2.0

* Provider: discovers every policy's authority, builds the default
authorization request, verifies id_tokens and redeems authorization codes
(Exchange) as a confidential client. A code is presented exactly once;
a grant the provider rejects because the user must sign in again is
reported as ErrReauthRequired, everything else as ErrTokenEndpoint.

* RewriteForPolicy: rewrites an outgoing authorization request when a
non-default policy was requested with the PolicyAuthenticationProperty.

* AttemptState and StateCodec: the per-attempt state (policy, nonce,
return path) which is signed into the oidc state parameter, so no server
side storage is needed between the challenge and the callback.

* Classifier: maps a RemoteFailure to a RecoveryAction. The default rules
send AADB2C90118 to the reset-password route and access_denied to the
application root.

* Orchestrator: the three hooks a host calls: OnPreRedirect,
OnCodeReceived and OnRemoteFailure.

* TokenCache: the access token of each signed-in identity. See the
tokencache package for implementations.

The b2c.callback package

The callback package provides http.HandlerFuncs for issuing challenges and
for the callback which receives the provider's authentication response.
*/
package b2c
