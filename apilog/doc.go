// Package apilog records one Event for every call that reaches the gateway's signed
// surface, whether it was accepted or rejected. Each event is published twice: to a
// RabbitMQ fanout exchange (Queue), from which any number of live consumers may read,
// and to a durable work queue (ArchiveQueue), whose consumers persist it to Postgres
// via Archive.
package apilog
