// Package path parses the colon-separated address grammar used by every
// path-based operation.
//
// Canonical form:
//
//	[:BASIS:]DICT[:KEY]
//
// Examples:
//
//	":"                          the root, lists every basis
//	":.System"                   the basis ".System"
//	"wlan.networks"              a dictionary in the default basis
//	"wlan.networks:recent"       dictionary "wlan.networks:recent", or key
//	                             "recent" in dictionary "wlan.networks"
//	":.System:wlan.networks"     a dictionary in the basis ".System"
//	"::foo"                      "foo" in the default basis
//	""                           the dictionary listing of the union basis
//
// There is no escaping. A trailing separator on the resolved basis or the
// dictionary/key remainder is rejected rather than truncated.
//
// The default basis is a placeholder resolved by the remote service: reads
// see the union of all mounted bases with the most recently added taking
// precedence; writes go to the most recently added basis that already holds
// the entry, or the most recently added basis when creating. This package
// never resolves it locally beyond substituting a configured name.
package path
