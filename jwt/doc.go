// Package jwt decodes credential claims and classifies access credentials as valid,
// expired, or malformed.
//
// Claims are decoded WITHOUT verifying the signature: verification is the backend's job.
// The classification is therefore advisory for scheduling a refresh and must fail closed:
// anything that cannot be decoded, or that lacks an expiry, is [Malformed], and callers
// treat [Malformed] exactly like [Expired].
package jwt
