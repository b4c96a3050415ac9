/*
callback is a package that provides http.HandlerFuncs for hosting the b2c
authentication flow: challenges which redirect the user agent to the
provider under a chosen policy, the callback which receives the provider's
response, a signed session cookie and a middleware which challenges
anonymous requests.
*/
package callback
