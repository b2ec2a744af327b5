// Package entities implements the record storage behind the gateway's demo entity
// API. Records are schemaless JSON objects, grouped into named tables and identified by
// a numeric ID assigned on creation.
package entities
