// Package qcconfig resolves and manages quality-control configurations:
// the sample percentage and the ordered approval-rule table applied when a
// batch seals.
//
// Resolution order is survey-specific active config, then the tenant default
// (a row with no survey id), then a built-in fallback. Resolved configs are
// cached with a short TTL so rule changes still take effect on the next
// batch seal.
//
// Repository implementations live in repository/postgres.
package qcconfig
