// Package matching implements the request-matching engine: nottable
// strings, the regex/schema-aware string matcher, the SUB_SET/MATCHING_KEY
// multimap, the body matcher union and the composed request matcher.
//
// Matching is total: no Matches method returns an error. Malformed patterns
// degrade to literal comparison at match time; pattern validity is checked
// separately at registration time via Compile.
package matching
