// Package master is the HTTP client for the central device registry.
//
// Every response uses the envelope
//
//	{"status": 1, "msg": "...", "data": ...}
//
// where status 1 means success. Any other status, a non-2xx HTTP code or an
// undecodable body is reported as ErrRequestFailed.
package master
