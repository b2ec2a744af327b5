// Package rmq connects the gateway to RabbitMQ, so that records of API calls can be
// published as JSON messages and consumed by any number of downstream processes
package rmq
