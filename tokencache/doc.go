/*
Package tokencache provides b2c.TokenCache implementations: Memory, for a
single process, and Redis, for hosts where the callback and the requests
using the token may be served by different processes.

Both caches honour the expiry given to Set. A read of an expired entry
reports the entry as absent and a zero expiry never expires.

	cache := tokencache.NewMemory()
	o, err := b2c.NewOrchestrator(config, provider, cache, codec)
*/
package tokencache
