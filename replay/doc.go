// Package replay provides hmac.NonceStore implementations, which remember the nonces of
// accepted requests for long enough that a captured request can't be replayed while its
// timestamp is still within the verifier's window. MemoryStore suits a single gateway
// process; PostgresStore and RedisStore share state across any number of replicas.
package replay
