// b2cauth provides a collection of related packages which sign users in to
// a web app with an Azure AD B2C style tenant whose user journeys are split
// across several policies, and keep the access token redeemed at sign-in for
// calling a downstream API.
//
//	b2c           configuration, discovery, the authentication hooks
//	b2c/callback  http handlers hosting the flow
//	tokencache    in-memory and Redis token caches
//	api           the downstream API client
//
// See cmd/b2c-webapp for a complete web app.
package b2cauth
